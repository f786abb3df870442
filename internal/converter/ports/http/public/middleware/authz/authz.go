package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/langowen/converter/internal/converter/auth"
	"github.com/pkg/errors"
)

type TokenParser interface {
	ParseToken(token string) (*auth.Claims, error)
}

// Responder writes an error response with the given status.
type Responder func(w http.ResponseWriter, code int, message string)

type ctxKey struct{}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*auth.Claims)
	return c, ok
}

// Authenticate validates the bearer token and stores its claims in the
// request context.
func Authenticate(parser TokenParser, respond Responder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				respond(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				respond(w, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			claims, err := parser.ParseToken(token)
			if err != nil {
				slog.Warn("invalid token", "error", err)
				msg := "Invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "Token has expired"
				}
				respond(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

// RequireRoles admits requests whose token carries one of roles.
func RequireRoles(respond Responder, roles ...auth.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				respond(w, http.StatusUnauthorized, "Authorization required")
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respond(w, http.StatusForbidden, "Insufficient role")
		})
	}
}
