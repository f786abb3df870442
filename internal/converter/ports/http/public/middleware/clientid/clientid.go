package clientid

import (
	"context"
	"net/http"
	"strings"
)

const Header = "clientid"

type ctxKey struct{}

// Require rejects requests without a non-empty clientid header and stores
// the value in the request context.
func Require(onMissing http.HandlerFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(Header))
			if id == "" {
				onMissing(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}

func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
