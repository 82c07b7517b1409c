// Package requesttime stamps each request with a single "now". Every
// timestamp written while serving that request (audit events, domain
// updated_at fields, overdue checks) reads the same instant via
// requestcontext.Now.
package requesttime

import (
	"net/http"
	"time"

	"conforma/pkg/requestcontext"
)

// Middleware captures the wall clock at the start of the request and stores
// it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
