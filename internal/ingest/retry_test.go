package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryer_FailThenSucceed(t *testing.T) {
	t.Parallel()
	sleep := &fakeSleeper{}
	r := NewRetryer(sleep, zap.NewNop())

	attempts := 0
	err := r.Do(context.Background(), "fetch", FailureContext{Op: OpFetch}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	// First retry waits 2s, second 4s.
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleep.recorded())
}

func TestRetryer_NonRetryableRunsOnce(t *testing.T) {
	t.Parallel()
	sleep := &fakeSleeper{}
	r := NewRetryer(sleep, zap.NewNop())

	attempts := 0
	parseErr := errors.New("text too short (5 chars), document is likely scanned")
	err := r.Do(context.Background(), "parse", FailureContext{Op: OpDocParse}, func(context.Context) error {
		attempts++
		return parseErr
	})
	require.ErrorIs(t, err, parseErr)
	require.Equal(t, 1, attempts)
	require.Empty(t, sleep.recorded())
}

func TestRetryer_ExhaustionReturnsOriginalError(t *testing.T) {
	t.Parallel()
	sleep := &fakeSleeper{}
	r := NewRetryer(sleep, zap.NewNop())

	attempts := 0
	netErr := errors.New("dial tcp: i/o timeout")
	err := r.Do(context.Background(), "fetch", FailureContext{Op: OpFetch}, func(context.Context) error {
		attempts++
		return netErr
	})
	// The returned error is the operation's own, not a wrapped copy, so
	// callers can classify it again.
	require.Same(t, netErr, err)
	// Network budget is 2 retries: 3 attempts total.
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleep.recorded())
}

func TestRetryer_PersistenceBudget(t *testing.T) {
	t.Parallel()
	sleep := &fakeSleeper{}
	r := NewRetryer(sleep, zap.NewNop())

	attempts := 0
	err := r.Do(context.Background(), "persist", FailureContext{Op: OpStore}, func(context.Context) error {
		attempts++
		return errors.New("quota exceeded")
	})
	require.Error(t, err)
	// Persistence budget is 3 retries: 4 attempts, backoff 2s, 4s, 8s.
	require.Equal(t, 4, attempts)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleep.recorded())
}

func TestRetryer_CancelledContextStopsRetries(t *testing.T) {
	t.Parallel()
	sleep := &fakeSleeper{}
	r := NewRetryer(sleep, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := r.Do(ctx, "fetch", FailureContext{Op: OpFetch}, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("connection refused")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
