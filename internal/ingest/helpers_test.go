package ingest

import (
	"context"
	"sync"
	"time"
)

// fakeClock returns a fixed instant, advanced manually.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSleeper records requested pauses without waiting.
type fakeSleeper struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (s *fakeSleeper) Pause(_ context.Context, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses = append(s.pauses, delay)
}

func (s *fakeSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.pauses...)
}

// fakeStore is a minimal in-package DocumentStore for unit tests. Documents
// are stored as handed in; callers already round-trip through valueToDoc.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]any

	// failNext maps "method" to an error returned once on the next call.
	failNext map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[string]map[string]map[string]any),
		failNext: make(map[string]error),
	}
}

func (s *fakeStore) failOnce(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method] = err
}

func (s *fakeStore) takeFailure(method string) error {
	if err, ok := s.failNext[method]; ok {
		delete(s.failNext, method)
		return err
	}
	return nil
}

func (s *fakeStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("get"); err != nil {
		return nil, err
	}
	doc, ok := s.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) Set(_ context.Context, collection, key string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("set"); err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]any)
	}
	s.docs[collection][key] = doc
	return nil
}

func (s *fakeStore) Merge(_ context.Context, collection, key string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("merge"); err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]any)
	}
	doc, ok := s.docs[collection][key]
	if !ok {
		doc = make(map[string]any)
		s.docs[collection][key] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *fakeStore) Increment(_ context.Context, collection, key, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("increment"); err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]any)
	}
	doc, ok := s.docs[collection][key]
	if !ok {
		doc = make(map[string]any)
		s.docs[collection][key] = doc
	}
	current, _ := doc[field].(float64)
	doc[field] = current + float64(delta)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("delete"); err != nil {
		return err
	}
	delete(s.docs[collection], key)
	return nil
}

func (s *fakeStore) Find(_ context.Context, _ string, _ Query) ([]map[string]any, error) {
	return nil, nil
}

// doc reads a stored document directly, bypassing the interface.
func (s *fakeStore) doc(collection, key string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[collection][key]
}

// fakeAlerts collects delivered alerts.
type fakeAlerts struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *fakeAlerts) Deliver(_ context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *fakeAlerts) delivered() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.alerts...)
}

// fakeExtractor yields a fixed listing, or an error.
type fakeExtractor struct {
	raws []RawJob
	err  error
}

func (e *fakeExtractor) Extract(_ context.Context) ([]RawJob, error) {
	return e.raws, e.err
}

// fakeDocParser serves canned bytes and extracts.
type fakeDocParser struct {
	fetchErr error
	parseErr error
	doc      DocExtract
}

func (p *fakeDocParser) Fetch(_ context.Context, _ string) ([]byte, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return []byte("%PDF-1.4 fake"), nil
}

func (p *fakeDocParser) Parse(_ context.Context, _ []byte) (DocExtract, error) {
	if p.parseErr != nil {
		return DocExtract{}, p.parseErr
	}
	return p.doc, nil
}
