// Package logging builds the service logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Abishekkhanal/sikkimjobs/internal/config"
)

// New builds a zap.Logger for the given runtime mode. Development logs a
// colored console at debug level. Staging keeps the JSON encoder but lowers
// the threshold to debug and drops sampling, so pre-production runs stay
// fully traceable. Production logs sampled JSON at info.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch mode {
	case config.ModeDevelopment:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case config.ModeStaging:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Sampling = nil
	case config.ModeProduction:
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown runtime mode %q", mode)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return logger.With(zap.String("mode", mode)), nil
}
