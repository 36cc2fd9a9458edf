package middleware

import (
	"fmt"
	"net/http"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/response"
)

// RequirePermission checks if user has specific permission
func RequirePermission(permission user.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, user.ErrMissingIdentity.Error())
				return
			}

			if !actor.Can(permission) {
				response.Forbidden(w, fmt.Sprintf("Insufficient permissions: required '%s', but user role is '%s'", permission, actor.Role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
