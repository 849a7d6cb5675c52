// Package ctx provides the request context handed to controllers.
//
// Instead of accepting (http.ResponseWriter, *http.Request), a handler
// receives a single *Context:
//
//	func (oc *OrderController) Show(c *ctx.Context) {
//	    order, err := oc.orders.Get(c.Context(), c.Param("orderId"), c.MustIdentity())
//	    if err != nil {
//	        c.Fail(err)
//	        return
//	    }
//	    c.JSON(http.StatusOK, order)
//	}
//
//	api.Get("/orders/{orderId}", "orders.show", ctx.Wrap(oc.Show))
package ctx

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/bind"
	"github.com/shashiranjanraj/vidorder/pkg/response"
)

// HandlerFunc is the context-aware handler signature.
type HandlerFunc func(c *Context)

// MaxBodyBytes caps JSON bodies read through BindJSON. Set from config at boot.
var MaxBodyBytes int64 = 4 << 20

// Wrap converts a HandlerFunc to a standard http.HandlerFunc.
func Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := acquire(w, r)
		defer release(c)
		h(c)
	}
}

// Context wraps a request/response pair.
type Context struct {
	W      http.ResponseWriter
	R      *http.Request
	status int
}

var pool = sync.Pool{
	New: func() any { return &Context{} },
}

func acquire(w http.ResponseWriter, r *http.Request) *Context {
	c := pool.Get().(*Context)
	c.W, c.R, c.status = w, r, 0
	return c
}

func release(c *Context) {
	c.W, c.R = nil, nil
	pool.Put(c)
}

// Param returns a URL path parameter ("/orders/{orderId}" → c.Param("orderId")).
func (c *Context) Param(key string) string {
	return chi.URLParam(c.R, key)
}

// Query returns a query-string value, or "".
func (c *Context) Query(key string) string {
	return c.R.URL.Query().Get(key)
}

// Header returns a request header.
func (c *Context) Header(key string) string {
	return c.R.Header.Get(key)
}

// Body reads the raw request body, capped at MaxBodyBytes.
func (c *Context) Body() ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(c.W, c.R.Body, MaxBodyBytes))
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.R.Context() }

// Identity returns the caller resolved by the authentication middleware.
func (c *Context) Identity() (auth.Identity, bool) {
	return auth.FromContext(c.R.Context())
}

// MustIdentity is Identity for routes mounted behind authentication.
func (c *Context) MustIdentity() auth.Identity {
	id, ok := c.Identity()
	if !ok {
		panic("ctx: no identity on an authenticated route")
	}
	return id
}

// BindJSON decodes and validates the JSON body into dest. The returned
// error is ready to pass to Fail.
func (c *Context) BindJSON(dest any) error {
	return bind.JSON(c.R, dest, MaxBodyBytes)
}

// JSON writes v with the given status.
func (c *Context) JSON(code int, v any) {
	c.status = code
	response.JSON(c.W, code, v)
}

func (c *Context) Created(v any) { c.JSON(http.StatusCreated, v) }

// Fail renders err with the status its kind maps to.
func (c *Context) Fail(err error) {
	c.status = apperr.Status(err)
	response.Error(c.W, c.R, err)
}

// Stream copies body to the client with the given content type.
func (c *Context) Stream(contentType, filename string, size int64, body io.Reader) error {
	c.W.Header().Set("Content-Type", contentType)
	if size > 0 {
		c.W.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if filename != "" {
		c.W.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	}
	c.W.WriteHeader(http.StatusOK)
	c.status = http.StatusOK
	_, err := io.Copy(c.W, body)
	return err
}

// WrittenStatus returns the status written so far, or 0.
func (c *Context) WrittenStatus() int { return c.status }
