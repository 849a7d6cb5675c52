// Package kernel assembles the HTTP handler: global middleware, the
// operational endpoints and the API routes.
package kernel

import (
	"net/http"
	"time"

	"github.com/shashiranjanraj/vidorder/app/routes"
	"github.com/shashiranjanraj/vidorder/pkg/metrics"
	"github.com/shashiranjanraj/vidorder/pkg/middleware"
	"github.com/shashiranjanraj/vidorder/pkg/reqid"
	"github.com/shashiranjanraj/vidorder/pkg/response"
	"github.com/shashiranjanraj/vidorder/pkg/router"
	"github.com/shashiranjanraj/vidorder/pkg/telemetry"
)

// Options tunes the global middleware.
type Options struct {
	ServiceName  string
	FrontendURL  string
	RateLimitRPS int
}

// HTTPKernel owns the router and the rate limiter state.
type HTTPKernel struct {
	router  *router.Router
	limiter *middleware.RateLimiter
	opts    Options
}

// NewHTTPKernel registers the global middleware and every API route.
func NewHTTPKernel(c routes.Controllers, opts Options) *HTTPKernel {
	if opts.ServiceName == "" {
		opts.ServiceName = "vidorder"
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}

	limiter := middleware.NewRateLimiter(float64(opts.RateLimitRPS), opts.RateLimitRPS*2, 10*time.Minute).
		Exempt(routes.WebhookPath)

	k := &HTTPKernel{
		router:  router.New(),
		limiter: limiter,
		opts:    opts,
	}

	r := k.router

	// Outermost first. The request ID must exist before Logger runs.
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(telemetry.WithRoute)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions(opts.FrontendURL)))
	r.Use(k.limiter.Middleware)

	r.NotFound(response.NotFound)
	r.MethodNotAllowed(response.MethodNotAllowed)

	r.Handle("/healthz", "health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	r.Handle("/metrics", "metrics", metrics.Handler())

	routes.RegisterAPI(r, c)

	return k
}

// Router exposes the underlying router, e.g. for route:list.
func (k *HTTPKernel) Router() *router.Router { return k.router }

// Handler returns the traced handler.
func (k *HTTPKernel) Handler() http.Handler {
	return telemetry.Middleware(k.opts.ServiceName)(k.router.Handler())
}
