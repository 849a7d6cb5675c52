package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/vidorder/app/services"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/ctx"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

type PaymentController struct {
	service *services.PaymentService
}

func NewPaymentController(s *services.PaymentService) *PaymentController {
	return &PaymentController{service: s}
}

// CreateCheckoutSession handles POST /api/payments/create-checkout-session.
func (pc *PaymentController) CreateCheckoutSession(c *ctx.Context) {
	var in services.CheckoutInput
	if err := c.BindJSON(&in); err != nil {
		c.Fail(err)
		return
	}

	res, err := pc.service.CreateCheckoutSession(c.Context(), c.MustIdentity(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Verify handles GET /api/payments/verify-payment/{sessionId}?orderId=.
func (pc *PaymentController) Verify(c *ctx.Context) {
	res, err := pc.service.VerifyPayment(c.Context(), c.MustIdentity(), c.Param("sessionId"), c.Query("orderId"))
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Webhook handles POST /api/payments/webhook. The raw body is needed for
// signature verification, so it is not bound as JSON.
func (pc *PaymentController) Webhook(c *ctx.Context) {
	payload, err := c.Body()
	if err != nil {
		c.Fail(apperr.Validation("request body too large"))
		return
	}

	if err := pc.service.HandleWebhook(c.Context(), payload, c.Header(SignatureHeader)); err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, map[string]bool{"received": true})
}
