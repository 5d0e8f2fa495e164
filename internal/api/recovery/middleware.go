// Package recovery keeps a panicking handler from taking the process down.
package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/api/respond"
	"github.com/zegl/eligo/internal/metrics"
)

// Middleware answers a panic in next with a 500 error body and logs it with
// its stack. http.ErrAbortHandler is re-raised for net/http to handle, and
// upgraded websocket requests get no body since the connection is no longer
// an HTTP response.
func Middleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				metrics.HTTPPanicsTotal.Inc()
				log.Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprint(rec)).
					Str("stack", string(debug.Stack())).
					Msg("handler panicked")
				if r.Header.Get("Upgrade") != "" {
					return
				}
				respond.WriteError(w, http.StatusInternalServerError, "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
