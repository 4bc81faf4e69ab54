package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/rs/zerolog/hlog"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hlog.FromRequest(r).Error().
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("panic recovered")
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
