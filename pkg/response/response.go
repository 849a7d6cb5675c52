// Package response writes JSON bodies and renders application errors as
// {"message": ..., "errors": {...}, "stack": ...}.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

// ErrorBody is the shape of every non-2xx response.
type ErrorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
	Stack   string            `json:"stack,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// Error maps err to its status and writes the error body. Server-side
// failures are logged with the request logger.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	body := ErrorBody{Message: apperr.PublicMessage(err)}

	if e, ok := apperr.As(err); ok {
		body.Errors = e.Fields
	}
	if !config.IsProduction() {
		body.Stack = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.WithCtx(r.Context()).Error("request failed",
			"status", status,
			"error", err.Error(),
			"path", r.URL.Path,
		)
	}

	JSON(w, status, body)
}

// Message writes a bare {"message": msg} with status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Message: msg})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	Message(w, http.StatusNotFound, "Route not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Message(w, http.StatusMethodNotAllowed, "Method not allowed")
}
