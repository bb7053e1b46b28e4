// Package memory provides an in-memory document store for development and
// tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// Store implements ingest.DocumentStore on nested maps. Documents are
// JSON-normalized on write so stored values behave like the Postgres jsonb
// implementation: timestamps become RFC 3339 strings, numbers float64.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]map[string]any)}
}

// Get returns a deep copy of the document at key.
func (s *Store) Get(_ context.Context, collection, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, ingest.ErrNotFound
	}
	return copyDoc(doc), nil
}

// Set replaces the document at key.
func (s *Store) Set(_ context.Context, collection, key string, doc map[string]any) error {
	normalized, err := normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(collection)[key] = normalized
	return nil
}

// Merge upserts the given fields into the document at key.
func (s *Store) Merge(_ context.Context, collection, key string, fields map[string]any) error {
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.ensure(collection)
	doc, ok := coll[key]
	if !ok {
		doc = make(map[string]any)
		coll[key] = doc
	}
	for k, v := range normalized {
		doc[k] = v
	}
	return nil
}

// Increment atomically adds delta to a numeric field.
func (s *Store) Increment(_ context.Context, collection, key, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.ensure(collection)
	doc, ok := coll[key]
	if !ok {
		doc = make(map[string]any)
		coll[key] = doc
	}
	current, _ := doc[field].(float64)
	doc[field] = current + float64(delta)
	return nil
}

// Delete removes the document at key; missing keys are fine.
func (s *Store) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

// Find applies filters, ordering and limit over a collection.
func (s *Store) Find(_ context.Context, collection string, q ingest.Query) ([]map[string]any, error) {
	s.mu.RLock()
	var out []map[string]any
	for _, doc := range s.collections[collection] {
		if matches(doc, q.Filters) {
			out = append(out, copyDoc(doc))
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := compare(out[i][q.OrderBy], out[j][q.OrderBy]) < 0
			if q.Desc {
				return !less
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) ensure(collection string) map[string]map[string]any {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[collection] = coll
	}
	return coll
}

func matches(doc map[string]any, filters []ingest.Filter) bool {
	for _, f := range filters {
		cmp := compare(doc[f.Field], f.Value)
		switch f.Op {
		case ingest.OpEqual:
			if cmp != 0 {
				return false
			}
		case ingest.OpLess:
			if cmp >= 0 {
				return false
			}
		case ingest.OpLessEqual:
			if cmp > 0 {
				return false
			}
		case ingest.OpGreater:
			if cmp <= 0 {
				return false
			}
		case ingest.OpGreaterEqual:
			if cmp < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two document values after coercing them into comparable
// shapes. Values that both parse as RFC 3339 compare as instants, not text:
// JSON encoding trims trailing fractional zeros, so text ordering can flip
// values within the same second.
func compare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	as := asString(a)
	bs := asString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func normalize(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return out, nil
}

func copyDoc(doc map[string]any) map[string]any {
	out, err := normalize(doc)
	if err != nil {
		// Stored documents already round-tripped through JSON once.
		panic(err)
	}
	return out
}
