package ingest

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by DocumentStore.Get when no document exists at
// the requested key.
var ErrNotFound = errors.New("document not found")

// QueryOp is a comparison operator for document queries.
type QueryOp string

const (
	OpEqual        QueryOp = "=="
	OpLess         QueryOp = "<"
	OpLessEqual    QueryOp = "<="
	OpGreater      QueryOp = ">"
	OpGreaterEqual QueryOp = ">="
)

// Filter constrains a query to documents whose field compares against Value.
type Filter struct {
	Field string
	Op    QueryOp
	Value any
}

// Query selects documents from a collection. Zero value returns everything.
// OrderAsTime marks the order-by field as an RFC 3339 timestamp; JSON
// encoding trims trailing fractional zeros, so text ordering alone can
// misorder values within the same second.
type Query struct {
	Filters     []Filter
	OrderBy     string
	OrderAsTime bool
	Desc        bool
	Limit       int
}

// DocumentStore is the persistence layer: a key-addressed document store
// with merge and atomic-increment semantics. Implementations live under
// internal/store.
type DocumentStore interface {
	// Get returns the document at key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (map[string]any, error)
	// Set writes the full document, replacing any existing one.
	Set(ctx context.Context, collection, key string, doc map[string]any) error
	// Merge upserts the given fields into the document at key, leaving
	// other fields untouched.
	Merge(ctx context.Context, collection, key string, fields map[string]any) error
	// Increment atomically adds delta to a numeric field, creating the
	// document and field as needed.
	Increment(ctx context.Context, collection, key, field string, delta int64) error
	// Delete removes the document at key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, collection, key string) error
	// Find runs a filtered, ordered, limited query over a collection.
	Find(ctx context.Context, collection string, q Query) ([]map[string]any, error)
}

// Extractor yields raw listing rows from the configured source page.
type Extractor interface {
	Extract(ctx context.Context) ([]RawJob, error)
}

// DocParser fetches a posting's attached document and extracts field
// candidates by pattern matching. It only errors on unrecoverable fetch or
// parse failure; a missing field is never an error.
type DocParser interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Parse(ctx context.Context, data []byte) (DocExtract, error)
}

// BlobStore archives raw document bytes and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Severity tags an outbound alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a severity-tagged operator notification.
type Alert struct {
	Severity Severity
	Title    string
	Message  string
	Context  map[string]string
}

// AlertSink delivers alerts best-effort; delivery failure must never abort
// the pipeline, so callers log the returned error and move on.
type AlertSink interface {
	Deliver(ctx context.Context, alert Alert) error
}

// Clock returns the current time (swapped out in tests).
type Clock interface {
	Now() time.Time
}

// Sleeper abstracts backoff and politeness waits so tests run instantly.
// The wait ends early when ctx is done.
type Sleeper interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerSleeper waits on a real timer.
type TimerSleeper struct{}

// Pause blocks for delay or until ctx finishes.
func (TimerSleeper) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
