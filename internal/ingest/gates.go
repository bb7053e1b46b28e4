package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyLocked signals that another run holds the lock. A normal exit,
// not a failure: the caller should leave quietly with exit code 0.
var ErrAlreadyLocked = errors.New("scrape run lock is held")

// ErrDisabled signals that the remote kill switch is off.
var ErrDisabled = errors.New("scraper is disabled by kill switch")

// DefaultLockTTL must exceed the longest plausible run so a crashed holder's
// stale lock expires on its own; no cleanup job is needed.
const DefaultLockTTL = 30 * time.Minute

// RunLock is the advisory single-flight lock for scrape runs, held as a
// singleton document in the store. The store does not enforce it; a process
// that ignores the lock can still write.
type RunLock struct {
	store  DocumentStore
	clock  Clock
	ttl    time.Duration
	owner  string
	logger *zap.Logger
}

// NewRunLock builds a RunLock with a fresh owner token.
func NewRunLock(store DocumentStore, clock Clock, ttl time.Duration, logger *zap.Logger) *RunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunLock{
		store:  store,
		clock:  clock,
		ttl:    ttl,
		owner:  uuid.NewString(),
		logger: logger,
	}
}

// Acquire takes the lock, stealing it only when the existing one has
// expired. Returns ErrAlreadyLocked when a live lock belongs to someone
// else.
func (l *RunLock) Acquire(ctx context.Context) error {
	now := l.clock.Now().UTC()
	doc, err := l.store.Get(ctx, CollectionLocks, LockKey)
	switch {
	case errors.Is(err, ErrNotFound):
		// No holder, fall through and take it.
	case err != nil:
		return fmt.Errorf("read run lock: %w", err)
	default:
		expires, ok := docTime(doc, "expiresAt")
		if ok && expires.After(now) {
			l.logger.Info("run lock already held",
				zap.Time("expires_at", expires),
				zap.Any("owner", doc["owner"]),
			)
			return ErrAlreadyLocked
		}
		l.logger.Warn("stealing expired run lock", zap.Any("owner", doc["owner"]))
	}

	lock := map[string]any{
		"owner":      l.owner,
		"acquiredAt": now,
		"expiresAt":  now.Add(l.ttl),
	}
	if err := l.store.Set(ctx, CollectionLocks, LockKey, lock); err != nil {
		return fmt.Errorf("write run lock: %w", err)
	}
	l.logger.Info("run lock acquired", zap.Duration("ttl", l.ttl))
	return nil
}

// Release deletes the lock document. Best-effort: on crash the lock is
// simply left to expire.
func (l *RunLock) Release(ctx context.Context) error {
	if err := l.store.Delete(ctx, CollectionLocks, LockKey); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	l.logger.Info("run lock released")
	return nil
}

// KillSwitch is the remotely toggleable enable/disable flag for the whole
// scraper, checked at run start and again before risky operations.
type KillSwitch struct {
	store  DocumentStore
	alerts AlertSink
	clock  Clock
	logger *zap.Logger

	alertOnce sync.Once
}

// NewKillSwitch builds a KillSwitch. One instance per run, so the
// disabled-alert fires at most once however many checkpoints hit it.
func NewKillSwitch(store DocumentStore, alerts AlertSink, clock Clock, logger *zap.Logger) *KillSwitch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KillSwitch{store: store, alerts: alerts, clock: clock, logger: logger}
}

// Enabled reads the flag. A missing document means the switch was never
// configured, which fails open: enabled.
func (k *KillSwitch) Enabled(ctx context.Context) (bool, error) {
	doc, err := k.store.Get(ctx, CollectionControls, KillSwitchKey)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read kill switch: %w", err)
	}
	enabled, ok := doc["enabled"].(bool)
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// Check returns ErrDisabled when the switch is off, alerting once per run.
func (k *KillSwitch) Check(ctx context.Context) error {
	enabled, err := k.Enabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return nil
	}
	k.alertOnce.Do(func() {
		k.logger.Warn("kill switch is disabled, aborting run")
		if k.alerts == nil {
			return
		}
		alert := Alert{
			Severity: SeverityWarning,
			Title:    "Scraper disabled",
			Message:  "The remote kill switch is off; the run was aborted.",
		}
		if derr := k.alerts.Deliver(ctx, alert); derr != nil {
			k.logger.Warn("kill switch alert delivery failed", zap.Error(derr))
		}
	})
	return ErrDisabled
}

// SetEnabled flips the switch. Used by the control CLI and ops endpoint.
func (k *KillSwitch) SetEnabled(ctx context.Context, enabled bool, reason string) error {
	fields := map[string]any{
		"enabled":   enabled,
		"reason":    reason,
		"updatedAt": k.clock.Now().UTC(),
	}
	if err := k.store.Merge(ctx, CollectionControls, KillSwitchKey, fields); err != nil {
		return fmt.Errorf("update kill switch: %w", err)
	}
	k.logger.Info("kill switch updated", zap.Bool("enabled", enabled), zap.String("reason", reason))
	return nil
}

// docTime pulls a timestamp field out of a raw document, tolerating both
// time.Time values (memory store) and RFC 3339 strings (JSON round-trips).
func docTime(doc map[string]any, field string) (time.Time, bool) {
	switch v := doc[field].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
