package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(RequestTotal.WithLabelValues("GET", "/api/orders/{orderId}", "200"))
	for _, code := range []string{"VO-1", "VO-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/"+code, nil))
	}
	after := testutil.ToFloat64(RequestTotal.WithLabelValues("GET", "/api/orders/{orderId}", "200"))

	assert.Equal(t, 2.0, after-before)
}

func TestObserveGateway(t *testing.T) {
	err := errors.New("declined")
	ObserveGateway("create_intent", time.Now(), &err)
	ObserveGateway("create_intent", time.Now(), nil)

	assert.Equal(t, 2, testutil.CollectAndCount(GatewayCallDuration, "vidorder_payments_gateway_call_duration_seconds"))
}

func TestHandlerServesRegistry(t *testing.T) {
	OrdersCreated.WithLabelValues("flash").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vidorder_orders_created_total{package="flash"}`)
}
