package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPipeline(store DocumentStore, ext, fb Extractor, docs DocParser, alerts AlertSink, clock Clock) *Pipeline {
	return NewPipeline(store, ext, fb, docs, nil, alerts, clock, &fakeSleeper{}, PipelineConfig{
		PolitenessDelay: 2 * time.Second,
		LockTTL:         30 * time.Minute,
		ExpectedMinJobs: 1,
	}, zap.NewNop())
}

func TestPipeline_ScannedDocumentStillPersists(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	alerts := &fakeAlerts{}

	ext := &fakeExtractor{raws: []RawJob{{
		PostName:   "Under Secretary",
		AdvtNo:     "17/SPSC/EXAM/2025",
		IssuedDate: "05/12/2025",
		PDFLinks:   []string{"https://spsc.sikkim.gov.in/docs/17.pdf"},
		SourceURL:  "https://spsc.sikkim.gov.in/Advertisement",
		ScrapedAt:  clock.Now(),
	}}}
	docs := &fakeDocParser{parseErr: errors.New("text too short (12 chars), document is likely scanned")}

	p := testPipeline(store, ext, nil, docs, alerts, clock)
	require.NoError(t, p.Run(context.Background()))

	// The record lands under the normalized identity, incomplete but kept.
	repo := NewJobRepo(store, clock, zap.NewNop())
	rec, err := repo.Get(context.Background(), "17_SPSC_EXAM_2025")
	require.NoError(t, err)
	require.Equal(t, "Under Secretary", rec.PostName)
	require.False(t, rec.DataComplete)
	require.Equal(t, JobStatusActive, rec.Status)
	require.NotEmpty(t, rec.Metadata.ParsingErrors)

	// A scanned document is expected, not alert-worthy.
	require.Empty(t, alerts.delivered())

	runDoc := store.doc(CollectionRuns, "run_20250601_080000")
	require.Equal(t, string(RunStatusPartial), runDoc["status"])
	require.Equal(t, float64(1), runDoc[CounterJobsInserted])
	require.Equal(t, float64(1), runDoc[CounterParsingErrors])
}

func TestPipeline_CleanRunSucceeds(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	ext := &fakeExtractor{raws: []RawJob{
		{
			PostName:   "Assistant Engineer",
			AdvtNo:     "19/SPSC/EXAM/2025",
			IssuedDate: "15/05/2025",
			PDFLinks:   []string{"https://spsc.sikkim.gov.in/docs/19.pdf"},
			ScrapedAt:  clock.Now(),
		},
		{
			PostName:   "Under Secretary",
			AdvtNo:     "20/SPSC/EXAM/2025",
			IssuedDate: "16/05/2025",
			PDFLinks:   []string{"https://spsc.sikkim.gov.in/docs/20.pdf"},
			ScrapedAt:  clock.Now(),
		},
	}}
	docs := &fakeDocParser{doc: DocExtract{
		Department: "Home Department",
		LastDate:   "30/12/2025",
		TotalPosts: "4",
	}}

	p := testPipeline(store, ext, nil, docs, nil, clock)
	require.NoError(t, p.Run(context.Background()))

	runDoc := store.doc(CollectionRuns, "run_20250601_080000")
	require.Equal(t, string(RunStatusSuccess), runDoc["status"])
	require.Equal(t, float64(2), runDoc[CounterJobsInserted])
	require.Equal(t, float64(2), runDoc["jobsFound"])

	// The lock is gone after the run.
	require.Nil(t, store.doc(CollectionLocks, LockKey))
}

func TestPipeline_DuplicatesSkipped(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	raw := RawJob{
		PostName:   "Assistant Engineer",
		AdvtNo:     "19/SPSC/EXAM/2025",
		IssuedDate: "15/05/2025",
		PDFLinks:   []string{"https://spsc.sikkim.gov.in/docs/19.pdf"},
		ScrapedAt:  clock.Now(),
	}
	docs := &fakeDocParser{doc: DocExtract{Department: "PWD", LastDate: "30/12/2025"}}

	p := testPipeline(store, &fakeExtractor{raws: []RawJob{raw}}, nil, docs, nil, clock)
	require.NoError(t, p.Run(context.Background()))

	// Second run sees the same listing and skips it.
	clock.Advance(time.Hour)
	p2 := testPipeline(store, &fakeExtractor{raws: []RawJob{raw}}, nil, docs, nil, clock)
	require.NoError(t, p2.Run(context.Background()))

	runDoc := store.doc(CollectionRuns, "run_20250601_090000")
	require.Equal(t, float64(1), runDoc[CounterJobsSkipped])
	require.Equal(t, float64(0), runDoc[CounterJobsInserted])
	require.Equal(t, string(RunStatusFailed), runDoc["status"])
}

func TestPipeline_KillSwitchAbortsBeforeAnything(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	ks := NewKillSwitch(store, nil, clock, zap.NewNop())
	require.NoError(t, ks.SetEnabled(context.Background(), false, "maintenance"))

	ext := &fakeExtractor{raws: []RawJob{{PostName: "X", AdvtNo: "1/SPSC/2025"}}}
	p := testPipeline(store, ext, nil, &fakeDocParser{}, nil, clock)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrDisabled)
	require.True(t, CleanExit(err))

	// No run record, no lock: the gate fired before any state was touched.
	require.Nil(t, store.doc(CollectionLocks, LockKey))
	require.Empty(t, store.docs[CollectionRuns])
}

func TestPipeline_LockedRunExitsCleanly(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	other := NewRunLock(store, clock, 30*time.Minute, zap.NewNop())
	require.NoError(t, other.Acquire(context.Background()))

	p := testPipeline(store, &fakeExtractor{}, nil, &fakeDocParser{}, nil, clock)
	err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyLocked)
	require.True(t, CleanExit(err))

	// The other holder's lock is untouched.
	require.NotNil(t, store.doc(CollectionLocks, LockKey))
}

func TestPipeline_StructureChangeAlertsAndFails(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	alerts := &fakeAlerts{}

	// Zero rows where at least one was expected, and no fallback to try.
	p := testPipeline(store, &fakeExtractor{raws: nil}, nil, &fakeDocParser{}, alerts, clock)
	err := p.Run(context.Background())
	require.Error(t, err)
	require.False(t, CleanExit(err))

	delivered := alerts.delivered()
	require.Len(t, delivered, 1)
	require.Equal(t, SeverityCritical, delivered[0].Severity)

	runDoc := store.doc(CollectionRuns, "run_20250601_080000")
	require.Equal(t, string(RunStatusFailed), runDoc["status"])
	require.NotEmpty(t, runDoc["fatalError"])

	// The lock was still released on the failure path.
	require.Nil(t, store.doc(CollectionLocks, LockKey))
}

func TestPipeline_HeadlessFallbackFillsShortfall(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	rendered := []RawJob{{
		PostName:   "Research Officer",
		AdvtNo:     "21/SPSC/EXAM/2025",
		IssuedDate: "10/05/2025",
		PDFLinks:   []string{"https://spsc.sikkim.gov.in/docs/21.pdf"},
		ScrapedAt:  clock.Now(),
	}}
	docs := &fakeDocParser{doc: DocExtract{Department: "Education", LastDate: "30/12/2025"}}

	p := testPipeline(store, &fakeExtractor{raws: nil}, &fakeExtractor{raws: rendered}, docs, nil, clock)
	require.NoError(t, p.Run(context.Background()))

	runDoc := store.doc(CollectionRuns, "run_20250601_080000")
	require.Equal(t, string(RunStatusSuccess), runDoc["status"])
	require.Equal(t, float64(1), runDoc[CounterJobsInserted])
}

func TestPipeline_PersistFailureAlertsAfterExhaustion(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	alerts := &fakeAlerts{}

	ext := &fakeExtractor{raws: []RawJob{{
		PostName:   "Clerk",
		AdvtNo:     "22/SPSC/EXAM/2025",
		IssuedDate: "10/05/2025",
		ScrapedAt:  clock.Now(),
	}}}

	p := testPipeline(store, ext, nil, &fakeDocParser{}, alerts, clock)
	// Every attempt at the job document write fails with a store error. The
	// run record's own writes must stay unaffected, so fail on the job get
	// that precedes each save.
	failing := &failingJobStore{fakeStore: store}
	p.jobs = NewJobRepo(failing, clock, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))

	delivered := alerts.delivered()
	require.Len(t, delivered, 1)
	require.Equal(t, SeverityWarning, delivered[0].Severity)

	runDoc := store.doc(CollectionRuns, "run_20250601_080000")
	require.Equal(t, string(RunStatusFailed), runDoc["status"])
}

// failingJobStore rejects all job-collection writes with a persistence error
// while passing everything else through.
type failingJobStore struct {
	*fakeStore
}

func (s *failingJobStore) Set(ctx context.Context, collection, key string, doc map[string]any) error {
	if collection == CollectionJobs {
		return errors.New("document store quota exceeded")
	}
	return s.fakeStore.Set(ctx, collection, key, doc)
}

func (s *failingJobStore) Merge(ctx context.Context, collection, key string, fields map[string]any) error {
	if collection == CollectionJobs {
		return errors.New("document store quota exceeded")
	}
	return s.fakeStore.Merge(ctx, collection, key, fields)
}
