package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/metrics"
)

// Counter field names on the run record. Increments are atomic on the store
// side so partial failures never lose counts.
const (
	CounterJobsFound     = "jobsFound"
	CounterJobsInserted  = "jobsInserted"
	CounterJobsSkipped   = "jobsSkipped"
	CounterParsingErrors = "parsingErrorsCount"
)

// RunTracker owns the lifecycle of one scrape execution: it creates the run
// record, applies incremental metric updates and finalizes the record with a
// terminal status exactly once. A tracker instance is the run context and is
// threaded explicitly through the pipeline; there is no process-global run
// state.
type RunTracker struct {
	store  DocumentStore
	clock  Clock
	logger *zap.Logger

	runID     string
	startedAt int64

	mu        sync.Mutex
	finalized bool
	errors    int
	inserted  int
}

// StartRun creates the run record with zeroed counters and status running.
func StartRun(ctx context.Context, store DocumentStore, clock Clock, logger *zap.Logger) (*RunTracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := clock.Now().UTC()
	run := RunRecord{
		RunID:     "run_" + now.Format("20060102_150405"),
		Status:    RunStatusRunning,
		StartedAt: now,
	}
	doc, err := valueToDoc(run)
	if err != nil {
		return nil, err
	}
	if err := store.Set(ctx, CollectionRuns, run.RunID, doc); err != nil {
		return nil, fmt.Errorf("initialize run record: %w", err)
	}
	logger.Info("run started", zap.String("run_id", run.RunID))
	return &RunTracker{
		store:     store,
		clock:     clock,
		logger:    logger.With(zap.String("run_id", run.RunID)),
		runID:     run.RunID,
		startedAt: now.Unix(),
	}, nil
}

// RunID returns the run record key.
func (t *RunTracker) RunID() string {
	return t.runID
}

// Increment bumps one counter field atomically. Counter updates are
// observability, not correctness: failures are logged and swallowed, and
// increments after finalization are ignored.
func (t *RunTracker) Increment(ctx context.Context, field string) {
	t.mu.Lock()
	if t.finalized {
		t.mu.Unlock()
		return
	}
	switch field {
	case CounterJobsInserted:
		t.inserted++
	case CounterParsingErrors:
		t.errors++
	}
	t.mu.Unlock()

	if err := t.store.Increment(ctx, CollectionRuns, t.runID, field, 1); err != nil {
		t.logger.Warn("run counter update failed", zap.String("field", field), zap.Error(err))
	}
}

// Update applies best-effort field patches to the run record. Failures are
// logged, never fatal.
func (t *RunTracker) Update(ctx context.Context, fields map[string]any) {
	t.mu.Lock()
	if t.finalized {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if err := t.store.Merge(ctx, CollectionRuns, t.runID, fields); err != nil {
		t.logger.Warn("run metrics update failed", zap.Error(err))
	}
}

// Finalize stamps the terminal status and completion time. Only the first
// call takes effect; later calls are no-ops so every exit path can call it
// unconditionally.
func (t *RunTracker) Finalize(ctx context.Context, status RunStatus, fatalErr string) {
	t.mu.Lock()
	if t.finalized {
		t.mu.Unlock()
		return
	}
	t.finalized = true
	t.mu.Unlock()

	if !status.Terminal() {
		status = RunStatusFailed
	}
	now := t.clock.Now().UTC()
	fields := map[string]any{
		"status":     string(status),
		"finishedAt": now,
	}
	if fatalErr != "" {
		fields["fatalError"] = fatalErr
	}
	if err := t.store.Merge(ctx, CollectionRuns, t.runID, fields); err != nil {
		t.logger.Error("run finalization write failed", zap.Error(err))
	}
	metrics.ObserveRun(string(status), now.Unix()-t.startedAt)
	t.logger.Info("run finalized",
		zap.String("status", string(status)),
		zap.String("fatal_error", fatalErr),
	)
}

// DeriveStatus computes the terminal status from what the run saw, used when
// no explicit status applies: failed on structural errors or an unexpected
// empty page, partial when some records landed alongside errors, success on
// a clean save, failed when nothing was saved at all.
func (t *RunTracker) DeriveStatus(structural bool) RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case structural:
		return RunStatusFailed
	case t.inserted > 0 && t.errors > 0:
		return RunStatusPartial
	case t.inserted > 0:
		return RunStatusSuccess
	default:
		return RunStatusFailed
	}
}
