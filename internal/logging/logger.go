package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates the service-wide structured logger. Every entry carries
// the service name so log streams from co-deployed services stay separable.
func NewLogger(serviceName string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	return config.Build()
}

// WithRequestID returns a logger scoped to one HTTP request.
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// WithComponent returns a logger tagged with a component name, used by the
// importer and query service to keep their log lines attributable.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
