package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Abishekkhanal/sikkimjobs/internal/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("development enables debug", func(t *testing.T) {
		t.Parallel()
		logger, err := New(config.ModeDevelopment)
		require.NoError(t, err)
		require.NotNil(t, logger.Check(zapcore.DebugLevel, "verbose"))
	})

	t.Run("staging enables debug", func(t *testing.T) {
		t.Parallel()
		logger, err := New(config.ModeStaging)
		require.NoError(t, err)
		require.NotNil(t, logger.Check(zapcore.DebugLevel, "verbose"))
	})

	t.Run("production filters debug", func(t *testing.T) {
		t.Parallel()
		logger, err := New(config.ModeProduction)
		require.NoError(t, err)
		require.Nil(t, logger.Check(zapcore.DebugLevel, "verbose"))
		require.NotNil(t, logger.Check(zapcore.InfoLevel, "routine"))
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		t.Parallel()
		_, err := New("qa")
		require.Error(t, err)
		require.Contains(t, err.Error(), "qa")
	})
}
