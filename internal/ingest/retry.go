package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/metrics"
)

// Retryer re-invokes fallible operations according to the classifier's
// verdict, backing off 2^attempt seconds between tries (2s, 4s, 8s, ...).
type Retryer struct {
	sleep  Sleeper
	logger *zap.Logger
}

// NewRetryer builds a Retryer. A nil sleeper gets a real timer.
func NewRetryer(sleep Sleeper, logger *zap.Logger) *Retryer {
	if sleep == nil {
		sleep = TimerSleeper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{sleep: sleep, logger: logger}
}

// Do runs op until it succeeds, the classifier says the failure is not
// retryable, or the category's retry budget is spent. The error returned is
// always the operation's own last error, never a wrapped one, so callers can
// classify it again for alert decisions.
func (r *Retryer) Do(ctx context.Context, name string, fctx FailureContext, op func(context.Context) error) error {
	attempt := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		verdict := Classify(err, fctx)
		attempt++
		if !verdict.Retry || attempt > verdict.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		delay := backoffDelay(attempt)
		metrics.ObserveRetry(string(verdict.Kind))
		r.logger.Warn("retrying operation",
			zap.String("operation", name),
			zap.String("kind", string(verdict.Kind)),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", verdict.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		r.sleep.Pause(ctx, delay)
	}
}

// backoffDelay is 2^attempt seconds: 2s for the first retry, then 4s, 8s.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
