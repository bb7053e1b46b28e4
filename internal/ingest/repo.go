package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// JobRepo addresses job records in the document store by identity.
type JobRepo struct {
	store  DocumentStore
	clock  Clock
	logger *zap.Logger
}

// NewJobRepo builds a JobRepo.
func NewJobRepo(store DocumentStore, clock Clock, logger *zap.Logger) *JobRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRepo{store: store, clock: clock, logger: logger}
}

// IsDuplicate resolves the identity for the given fields and reports whether
// a record already exists at that exact key. Only the resolved identity
// takes part in the check; post name and issued date matter solely through
// the fallback path. The check-then-write sequence is not transactional,
// which the single-flight run lock makes acceptable.
func (r *JobRepo) IsDuplicate(ctx context.Context, advtNo, postName, issuedDate string) (bool, error) {
	identity := ResolveIdentity(advtNo, postName, issuedDate)
	_, err := r.store.Get(ctx, CollectionJobs, identity)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("duplicate check for %s: %w", identity, err)
	}
	return true, nil
}

// Get loads a job record by identity.
func (r *JobRepo) Get(ctx context.Context, identity string) (JobRecord, error) {
	doc, err := r.store.Get(ctx, CollectionJobs, identity)
	if err != nil {
		return JobRecord{}, err
	}
	var rec JobRecord
	if err := docToValue(doc, &rec); err != nil {
		return JobRecord{}, fmt.Errorf("decode job %s: %w", identity, err)
	}
	return rec, nil
}

// Save persists a record under its identity with merge semantics. A complete
// record is never overwritten by an incomplete one: if the stored record has
// dataComplete=true and the incoming one does not, only provenance fields
// and new parsing errors flow through; the structured fields stay as they
// are. Enrichment only moves forward.
func (r *JobRepo) Save(ctx context.Context, rec JobRecord) (inserted bool, err error) {
	now := r.clock.Now().UTC()
	rec.UpdatedAt = now

	existing, err := r.Get(ctx, rec.Identity)
	if errors.Is(err, ErrNotFound) {
		rec.CreatedAt = now
		doc, merr := valueToDoc(rec)
		if merr != nil {
			return false, merr
		}
		if serr := r.store.Set(ctx, CollectionJobs, rec.Identity, doc); serr != nil {
			return false, fmt.Errorf("insert job %s: %w", rec.Identity, serr)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if existing.DataComplete && !rec.DataComplete {
		fields := map[string]any{
			"dataComplete": true,
			"scrapedAt":    rec.ScrapedAt,
			"updatedAt":    now,
		}
		if combined := appendParsingErrors(existing, rec); combined != nil {
			fields["metadata"] = map[string]any{
				"sourceUrl":     existing.Metadata.SourceURL,
				"parsingErrors": combined,
			}
		}
		if merr := r.store.Merge(ctx, CollectionJobs, rec.Identity, fields); merr != nil {
			return false, fmt.Errorf("merge job %s: %w", rec.Identity, merr)
		}
		r.logger.Info("kept complete record, incomplete rescrape merged as metadata only",
			zap.String("identity", rec.Identity))
		return false, nil
	}

	rec.CreatedAt = existing.CreatedAt
	rec.Metadata.ParsingErrors = appendParsingErrors(existing, rec)
	doc, merr := valueToDoc(rec)
	if merr != nil {
		return false, merr
	}
	if serr := r.store.Merge(ctx, CollectionJobs, rec.Identity, doc); serr != nil {
		return false, fmt.Errorf("merge job %s: %w", rec.Identity, serr)
	}
	return false, nil
}

// appendParsingErrors keeps the stored error history append-only per attempt.
func appendParsingErrors(existing, incoming JobRecord) []string {
	if len(incoming.Metadata.ParsingErrors) == 0 {
		return existing.Metadata.ParsingErrors
	}
	out := append([]string(nil), existing.Metadata.ParsingErrors...)
	return append(out, incoming.Metadata.ParsingErrors...)
}

// RunRepo reads run records, primarily for the ops surface.
type RunRepo struct {
	store DocumentStore
}

// NewRunRepo builds a RunRepo.
func NewRunRepo(store DocumentStore) *RunRepo {
	return &RunRepo{store: store}
}

// Recent returns the latest runs, newest first.
func (r *RunRepo) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	docs, err := r.store.Find(ctx, CollectionRuns, Query{
		OrderBy:     "startedAt",
		OrderAsTime: true,
		Desc:        true,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return decodeRuns(docs)
}

// Stuck returns runs still marked running whose start is older than maxAge.
// Such a record is evidence of a crash: finalization never reached it.
func (r *RunRepo) Stuck(ctx context.Context, now time.Time, maxAge time.Duration) ([]RunRecord, error) {
	cutoff := now.Add(-maxAge)
	docs, err := r.store.Find(ctx, CollectionRuns, Query{
		Filters: []Filter{
			{Field: "status", Op: OpEqual, Value: string(RunStatusRunning)},
			{Field: "startedAt", Op: OpLess, Value: cutoff},
		},
		OrderBy:     "startedAt",
		OrderAsTime: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query stuck runs: %w", err)
	}
	return decodeRuns(docs)
}

func decodeRuns(docs []map[string]any) ([]RunRecord, error) {
	runs := make([]RunRecord, 0, len(docs))
	for _, doc := range docs {
		var run RunRecord
		if err := docToValue(doc, &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// valueToDoc and docToValue round-trip typed records through JSON into the
// generic document shape the store works with.
func valueToDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func docToValue(doc map[string]any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
