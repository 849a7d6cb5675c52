package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/vidorder/app/services"
	"github.com/shashiranjanraj/vidorder/pkg/ctx"
)

type DashboardController struct {
	service *services.DashboardService
}

func NewDashboardController(s *services.DashboardService) *DashboardController {
	return &DashboardController{service: s}
}

// Admin handles GET /api/dashboard/admin.
func (dc *DashboardController) Admin(c *ctx.Context) {
	summary, err := dc.service.Summary(c.Context())
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
