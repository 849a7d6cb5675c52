package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/vidorder/app/services"
	"github.com/shashiranjanraj/vidorder/pkg/ctx"
)

type AuthController struct {
	service *services.AuthService
}

func NewAuthController(s *services.AuthService) *AuthController {
	return &AuthController{service: s}
}

// Register handles POST /api/auth/register.
func (ac *AuthController) Register(c *ctx.Context) {
	var in services.RegisterInput
	if err := c.BindJSON(&in); err != nil {
		c.Fail(err)
		return
	}

	res, err := ac.service.Register(c.Context(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(res)
}

// Login handles POST /api/auth/login.
func (ac *AuthController) Login(c *ctx.Context) {
	var in services.LoginInput
	if err := c.BindJSON(&in); err != nil {
		c.Fail(err)
		return
	}

	res, err := ac.service.Login(c.Context(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Me handles GET /api/auth/me.
func (ac *AuthController) Me(c *ctx.Context) {
	c.JSON(http.StatusOK, ac.service.Me(c.MustIdentity()))
}
