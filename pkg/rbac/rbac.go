// Package rbac provides role gates for routes behind authentication.
package rbac

import (
	"net/http"
	"strings"

	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/middleware"
	"github.com/shashiranjanraj/vidorder/pkg/response"
)

// Require checks that identity holds one of roles.
func Require(id auth.Identity, roles ...string) error {
	for _, role := range roles {
		if id.Role == role {
			return nil
		}
	}
	return apperr.Forbidden("Not authorized as " + joinRoles(roles))
}

// HasRole allows the request through only for the given roles.
// middleware.Authenticate must already have run.
func HasRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := middleware.IdentityFromCtx(r)
			if !ok {
				response.Error(w, r, apperr.Auth("Not authorized, no token"))
				return
			}
			if err := Require(id, roles...); err != nil {
				response.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Admin is HasRole(auth.RoleAdmin).
func Admin() func(http.Handler) http.Handler { return HasRole(auth.RoleAdmin) }

func joinRoles(roles []string) string {
	if len(roles) == 1 && roles[0] == auth.RoleAdmin {
		return "an admin"
	}
	return strings.Join(roles, " or ")
}
