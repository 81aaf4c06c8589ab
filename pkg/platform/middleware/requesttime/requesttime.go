// Package requesttime pins one wall-clock timestamp per request so audit
// events and logs emitted by a single invocation agree.
package requesttime

import (
	"net/http"
	"time"

	"treasury/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
