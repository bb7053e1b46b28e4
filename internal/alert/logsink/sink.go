// Package logsink delivers alerts to the structured log. The default sink
// outside production.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// Sink writes alerts as log lines.
type Sink struct {
	logger *zap.Logger
}

// New builds a Sink.
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger}
}

// Deliver logs the alert. Never fails.
func (s *Sink) Deliver(_ context.Context, alert ingest.Alert) error {
	fields := []zap.Field{
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
	}
	for k, v := range alert.Context {
		fields = append(fields, zap.String("ctx_"+k, v))
	}
	if alert.Severity == ingest.SeverityCritical {
		s.logger.Error("ALERT", fields...)
	} else {
		s.logger.Warn("ALERT", fields...)
	}
	return nil
}
