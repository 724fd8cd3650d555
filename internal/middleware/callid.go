// Package middleware provides HTTP middleware for codevet.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/codevet/codevet/internal/logger"
)

const headerCallID = "X-Call-ID"

// CallID is HTTP middleware that extracts X-Call-ID from the request header
// or generates a new one. The ID is stored in the context and set on the
// response header, so log lines and responses can be correlated.
func CallID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerCallID)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithCallID(r.Context(), id)
		w.Header().Set(headerCallID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
