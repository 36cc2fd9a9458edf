package middleware

import (
	"context"
	"net/http"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

type actorKey struct{}

// AuthRequired rejects requests without a valid access token and stores the
// caller as a user.Actor in the request context.
func AuthRequired(jwtService jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())

			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.Unauthorized(w, jwt.ErrInvalidToken.Error())
				return
			}

			actor, err := jwtService.ActorFromClaims(claims)
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		}
		return http.HandlerFunc(hfn)
	}
}

func WithActor(ctx context.Context, actor user.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (user.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(user.Actor)
	return actor, ok
}
