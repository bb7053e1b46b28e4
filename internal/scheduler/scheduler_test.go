package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := New("@every 1h", func(context.Context) error {
		calls.Add(1)
		return nil
	}, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_InvalidSpecRejected(t *testing.T) {
	t.Parallel()

	s := New("every sometimes", func(context.Context) error { return nil }, zap.NewNop())
	require.Error(t, s.Start(context.Background()))
}

func TestScheduler_OverlappingTickSkipped(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	s := New("@every 1h", func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A second tick while the first run is still going must be dropped.
	s.runOnce(ctx)
	require.Equal(t, int32(1), calls.Load())

	close(release)
}

func TestScheduler_CleanSkipIsNotAFailure(t *testing.T) {
	t.Parallel()

	// Lock contention and the kill switch surface as clean skips; the
	// scheduler keeps ticking rather than treating them as errors.
	var calls atomic.Int32
	s := New("@every 1h", func(context.Context) error {
		calls.Add(1)
		return ingest.ErrAlreadyLocked
	}, zap.NewNop())

	ctx := context.Background()
	s.runOnce(ctx)
	s.runOnce(ctx)
	require.Equal(t, int32(2), calls.Load())
}

func TestScheduler_FailedRunDoesNotWedge(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := New("@every 1h", func(context.Context) error {
		calls.Add(1)
		return errors.New("source unreachable")
	}, zap.NewNop())

	ctx := context.Background()
	s.runOnce(ctx)
	s.runOnce(ctx)
	require.Equal(t, int32(2), calls.Load())
}

func TestScheduler_CancelledContextSkipsRun(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := New("@every 1h", func(context.Context) error {
		calls.Add(1)
		return nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runOnce(ctx)
	require.Equal(t, int32(0), calls.Load())
}
