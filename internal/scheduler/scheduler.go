// Package scheduler wires up the cron job that periodically triggers a scrape
// run. A clean-skip outcome, another instance holds the lock or the kill
// switch is off, is logged and waited out until the next tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// RunFunc executes one scrape run end to end.
type RunFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron and manages the scrape loop.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler firing on the given cron spec, e.g. "@every 6h".
func New(spec string, run RunFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		spec:   spec,
		run:    run,
		logger: logger,
	}
}

// Start registers the job and starts the scheduler. Also runs one scrape
// immediately so a fresh deployment does not sit idle until the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))

	go s.runOnce(ctx)
	return nil
}

// Stop halts the cron loop and waits for a tick in flight to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// runOnce executes a single run, skipping the tick entirely when the
// previous one is still in flight. The store lock would reject it anyway;
// this just avoids the noise.
func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous run still in progress, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return
	}
	err := s.run(ctx)
	switch {
	case err == nil:
		s.logger.Info("scrape run finished")
	case ingest.CleanExit(err):
		s.logger.Info("scrape run skipped", zap.String("reason", err.Error()))
	default:
		s.logger.Error("scrape run failed", zap.Error(err))
	}
}
