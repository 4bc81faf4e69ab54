package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-Id"

// Logger attaches logger to each request with a request id and writes one
// access line when the request completes.
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			evt := hlog.FromRequest(r).Info()
			if status >= http.StatusInternalServerError {
				evt = hlog.FromRequest(r).Error()
			}
			evt.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Int64("duration_ms", duration.Milliseconds()).
				Str("remote_addr", r.RemoteAddr).
				Msg("request")
		})(next)
		h = hlog.RequestIDHandler("request_id", RequestIDHeader)(h)
		return hlog.NewHandler(logger)(h)
	}
}
