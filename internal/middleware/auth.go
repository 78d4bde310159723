package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/settlement/internal/auth"
	"github.com/josh-kwaku/settlement/internal/handler"
)

// Auth attaches the customer id from a bearer token. Requests without an
// Authorization header pass through anonymously; a header that does not hold
// a valid token is rejected.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithCustomerID(r.Context(), claims.CustomerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
