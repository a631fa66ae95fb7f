package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/septivank/energy-measurements-api/internal/logging"
	"go.uber.org/zap"
)

type contextKey string

const loggerKey contextKey = "logger"

// RequestID assigns every request a v4 UUID, echoes it in the X-Request-ID
// response header, and stores a request-scoped logger in the context.
func RequestID(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logging.WithRequestID(logger, requestID)
			ctx := context.WithValue(r.Context(), loggerKey, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggerFrom returns the request-scoped logger, or a no-op logger when the
// middleware did not run (direct handler tests).
func loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
