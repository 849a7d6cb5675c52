package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/services"
	"github.com/shashiranjanraj/vidorder/pkg/ctx"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

type OrderController struct {
	service *services.OrderService
}

func NewOrderController(s *services.OrderService) *OrderController {
	return &OrderController{service: s}
}

// Create handles POST /api/orders.
func (oc *OrderController) Create(c *ctx.Context) {
	var in services.CreateOrderInput
	if err := c.BindJSON(&in); err != nil {
		c.Fail(err)
		return
	}

	res, err := oc.service.CreateOrder(c.Context(), c.MustIdentity(), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(res)
}

// Mine handles GET /api/orders/myorders.
func (oc *OrderController) Mine(c *ctx.Context) {
	orders, err := oc.service.ListOwnOrders(c.Context(), c.MustIdentity())
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, map[string][]models.Order{"data": orders})
}

// Index handles GET /api/orders (admin).
func (oc *OrderController) Index(c *ctx.Context) {
	orders, err := oc.service.ListAllOrders(c.Context())
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Show handles GET /api/orders/{orderId}.
func (oc *OrderController) Show(c *ctx.Context) {
	order, err := oc.service.GetOrder(c.Context(), c.Param("orderId"), c.MustIdentity())
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type uploadRequest struct {
	Files []services.FileInput `json:"files"`
}

// Upload handles POST /api/orders/{orderId}/upload.
func (oc *OrderController) Upload(c *ctx.Context) {
	var req uploadRequest
	if err := c.BindJSON(&req); err != nil {
		c.Fail(err)
		return
	}

	order, err := oc.service.AttachUploads(c.Context(), c.Param("orderId"), c.MustIdentity(), req.Files)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PUT /api/orders/{orderId}/status (admin).
func (oc *OrderController) UpdateStatus(c *ctx.Context) {
	var req statusRequest
	if err := c.BindJSON(&req); err != nil {
		c.Fail(err)
		return
	}

	order, err := oc.service.SetStatus(c.Context(), c.Param("orderId"), req.Status)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Processed handles POST /api/orders/{orderId}/processed (admin).
func (oc *OrderController) Processed(c *ctx.Context) {
	var in services.FileInput
	if err := c.BindJSON(&in); err != nil {
		c.Fail(err)
		return
	}

	order, err := oc.service.AttachProcessedAsset(c.Context(), c.Param("orderId"), in)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Asset handles GET /api/orders/{orderId}/assets/{assetId}.
func (oc *OrderController) Asset(c *ctx.Context) {
	asset, body, err := oc.service.OpenAsset(c.Context(), c.Param("orderId"), c.Param("assetId"), c.MustIdentity())
	if err != nil {
		c.Fail(err)
		return
	}
	defer body.Close()

	if err := c.Stream(asset.ContentType, asset.Filename, asset.Size, body); err != nil {
		logger.WithCtx(c.Context()).Warn("asset stream interrupted", "asset", asset.ID, "error", err)
	}
}
