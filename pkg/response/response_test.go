package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
)

func render(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestErrorMapsKinds(t *testing.T) {
	config.Set("APP_ENV", "local")

	cases := []struct {
		err    error
		status int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.Auth("no"), http.StatusUnauthorized},
		{apperr.Forbidden("no"), http.StatusForbidden},
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.Conflict("dup"), http.StatusConflict},
		{apperr.Payment("unpaid"), http.StatusBadRequest},
		{apperr.Gateway("card declined", errors.New("stripe")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec, _ := render(t, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestErrorHidesInternalsInProduction(t *testing.T) {
	config.Set("APP_ENV", "production")
	t.Cleanup(func() { config.Set("APP_ENV", "local") })

	_, body := render(t, apperr.Internal("db write", errors.New("connection refused")))
	assert.Equal(t, "Internal Server Error", body.Message)
	assert.Empty(t, body.Stack)
}

func TestErrorIncludesStackOutsideProduction(t *testing.T) {
	config.Set("APP_ENV", "local")

	_, body := render(t, apperr.ValidationFields("Validation failed", map[string]string{"email": "is required"}))
	assert.Equal(t, "Validation failed", body.Message)
	assert.Equal(t, "is required", body.Errors["email"])
	assert.NotEmpty(t, body.Stack)
}
