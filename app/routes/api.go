package routes

import (
	"github.com/shashiranjanraj/vidorder/app/controllers"
	"github.com/shashiranjanraj/vidorder/pkg/ctx"
	"github.com/shashiranjanraj/vidorder/pkg/middleware"
	"github.com/shashiranjanraj/vidorder/pkg/rbac"
	"github.com/shashiranjanraj/vidorder/pkg/router"
)

// WebhookPath receives payment provider events. It is not rate limited.
const WebhookPath = "/api/payments/webhook"

// Controllers is everything the API routes dispatch to.
type Controllers struct {
	Auth          *controllers.AuthController
	Orders        *controllers.OrderController
	Payments      *controllers.PaymentController
	Dashboard     *controllers.DashboardController
	Authenticator middleware.Authenticator
}

func RegisterAPI(r *router.Router, c Controllers) {
	authn := middleware.Authenticate(c.Authenticator)
	admin := rbac.Admin()

	api := r.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", "auth.register", ctx.Wrap(c.Auth.Register))
	authRoutes.Post("/login", "auth.login", ctx.Wrap(c.Auth.Login))
	authRoutes.Get("/me", "auth.me", ctx.Wrap(c.Auth.Me), authn)

	orders := api.Group("/orders", authn)
	orders.Post("/", "orders.store", ctx.Wrap(c.Orders.Create))
	orders.Get("/", "orders.index", ctx.Wrap(c.Orders.Index), admin)
	orders.Get("/myorders", "orders.mine", ctx.Wrap(c.Orders.Mine))
	orders.Get("/{orderId}", "orders.show", ctx.Wrap(c.Orders.Show))
	orders.Post("/{orderId}/upload", "orders.upload", ctx.Wrap(c.Orders.Upload))
	orders.Put("/{orderId}/status", "orders.status", ctx.Wrap(c.Orders.UpdateStatus), admin)
	orders.Post("/{orderId}/processed", "orders.processed", ctx.Wrap(c.Orders.Processed), admin)
	orders.Get("/{orderId}/assets/{assetId}", "orders.asset", ctx.Wrap(c.Orders.Asset))

	payments := api.Group("/payments")
	payments.Post("/create-checkout-session", "payments.checkout", ctx.Wrap(c.Payments.CreateCheckoutSession), authn)
	payments.Get("/verify-payment/{sessionId}", "payments.verify", ctx.Wrap(c.Payments.Verify), authn)

	r.Post(WebhookPath, "payments.webhook", ctx.Wrap(c.Payments.Webhook))

	dashboard := api.Group("/dashboard", authn, admin)
	dashboard.Get("/admin", "dashboard.admin", ctx.Wrap(c.Dashboard.Admin))
}
