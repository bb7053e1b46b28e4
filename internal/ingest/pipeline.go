package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/metrics"
)

// PipelineConfig carries the knobs the orchestrator needs.
type PipelineConfig struct {
	// PolitenessDelay is the fixed pause between per-record operations.
	// A deliberate throttle on the source site, not a correctness
	// mechanism.
	PolitenessDelay time.Duration
	// LockTTL bounds how long a crashed run can block the next one.
	LockTTL time.Duration
	// ExpectedMinJobs is the smallest listing count considered plausible;
	// fewer rows than this is treated as source-structure drift.
	ExpectedMinJobs int
	// BlobPrefix is prepended to archived document paths.
	BlobPrefix string
}

// Pipeline composes the whole ingestion flow for one run: gates, run record,
// per-record processing, finalization. Job records are processed strictly
// sequentially in the order the extractor yields them.
type Pipeline struct {
	store      DocumentStore
	extractor  Extractor
	fallback   Extractor
	docs       DocParser
	blobs      BlobStore
	alerts     AlertSink
	clock      Clock
	sleep      Sleeper
	retry      *Retryer
	normalizer *Normalizer
	jobs       *JobRepo
	cfg        PipelineConfig
	logger     *zap.Logger
}

// NewPipeline wires a Pipeline. The fallback extractor may be nil; blobs and
// alerts may be nil as well, in which case archival and alerting are skipped.
func NewPipeline(
	store DocumentStore,
	extractor Extractor,
	fallback Extractor,
	docs DocParser,
	blobs BlobStore,
	alerts AlertSink,
	clock Clock,
	sleep Sleeper,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sleep == nil {
		sleep = TimerSleeper{}
	}
	return &Pipeline{
		store:      store,
		extractor:  extractor,
		fallback:   fallback,
		docs:       docs,
		blobs:      blobs,
		alerts:     alerts,
		clock:      clock,
		sleep:      sleep,
		retry:      NewRetryer(sleep, logger),
		normalizer: NewNormalizer(clock, logger),
		jobs:       NewJobRepo(store, clock, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one scrape run end to end. It returns ErrDisabled or
// ErrAlreadyLocked for the two clean no-op exits, nil for success or partial
// success, and any other error only after the run record has been finalized
// as failed. Lock release and finalization are guaranteed on every exit
// path, including panics escaping a collaborator.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	killSwitch := NewKillSwitch(p.store, p.alerts, p.clock, p.logger)
	if cerr := killSwitch.Check(ctx); cerr != nil {
		return cerr
	}

	lock := NewRunLock(p.store, p.clock, p.cfg.LockTTL, p.logger)
	if lerr := lock.Acquire(ctx); lerr != nil {
		return lerr
	}
	defer func() {
		// Release must run even when the body panics or the context was
		// cancelled by a termination signal; a fresh context gives the
		// delete a short window of its own.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if rerr := lock.Release(releaseCtx); rerr != nil {
			p.logger.Warn("run lock release failed, lock will expire on its own", zap.Error(rerr))
		}
	}()

	tracker, terr := StartRun(ctx, p.store, p.clock, p.logger)
	if terr != nil {
		return terr
	}
	defer func() {
		finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err != nil {
			tracker.Finalize(finalCtx, RunStatusFailed, truncateMessage(err.Error(), 500))
			return
		}
		tracker.Finalize(finalCtx, tracker.DeriveStatus(false), "")
	}()

	raws, eerr := p.extractListings(ctx, killSwitch)
	if eerr != nil {
		p.maybeAlert(ctx, eerr, FailureContext{Op: OpExtract})
		return eerr
	}

	tracker.Update(ctx, map[string]any{"jobsFound": len(raws)})
	p.logger.Info("listings extracted", zap.Int("count", len(raws)))

	for i, raw := range raws {
		if cerr := killSwitch.Check(ctx); cerr != nil {
			return cerr
		}
		if ctx.Err() != nil {
			// The unit of cancellation is "stop before the next
			// record", never an in-flight operation.
			return ctx.Err()
		}
		if i > 0 {
			metrics.ObservePolitenessWait(p.cfg.PolitenessDelay)
			p.sleep.Pause(ctx, p.cfg.PolitenessDelay)
		}
		p.processRecord(ctx, tracker, raw)
	}

	return nil
}

// extractListings pulls raw rows from the source page, falling back to the
// headless extractor once before declaring the page structure changed.
func (p *Pipeline) extractListings(ctx context.Context, killSwitch *KillSwitch) ([]RawJob, error) {
	if cerr := killSwitch.Check(ctx); cerr != nil {
		return nil, cerr
	}

	var raws []RawJob
	err := p.retry.Do(ctx, "extract listings", FailureContext{Op: OpExtract}, func(ctx context.Context) error {
		var ferr error
		raws, ferr = p.extractor.Extract(ctx)
		return ferr
	})
	if err == nil && len(raws) < p.cfg.ExpectedMinJobs && p.fallback != nil {
		p.logger.Warn("static extraction came up short, trying headless fallback",
			zap.Int("found", len(raws)),
			zap.Int("expected_min", p.cfg.ExpectedMinJobs),
		)
		if rendered, ferr := p.fallback.Extract(ctx); ferr == nil && len(rendered) > len(raws) {
			raws = rendered
		} else if ferr != nil {
			p.logger.Warn("headless fallback failed", zap.Error(ferr))
		}
	}
	if err != nil {
		return nil, err
	}
	if len(raws) < p.cfg.ExpectedMinJobs {
		return nil, fmt.Errorf("no job listings found: got %d rows, expected at least %d (all extraction strategies exhausted)",
			len(raws), p.cfg.ExpectedMinJobs)
	}
	return raws, nil
}

// processRecord runs one raw listing through dedupe, document parsing,
// normalization and persistence. One bad record never aborts the run: any
// failure is logged, counted and converted into an incomplete-but-persisted
// record where possible.
func (p *Pipeline) processRecord(ctx context.Context, tracker *RunTracker, raw RawJob) {
	identity := ResolveIdentity(raw.AdvtNo, raw.PostName, raw.IssuedDate)
	log := p.logger.With(zap.String("identity", identity))

	defer func() {
		if r := recover(); r != nil {
			log.Error("record processing panicked", zap.Any("panic", r))
			tracker.Increment(ctx, CounterParsingErrors)
			metrics.ObserveJob("error")
		}
	}()

	dup, err := p.jobs.IsDuplicate(ctx, raw.AdvtNo, raw.PostName, raw.IssuedDate)
	if err != nil {
		log.Warn("duplicate check failed, treating record as new", zap.Error(err))
	}
	if dup {
		log.Debug("duplicate record skipped")
		tracker.Increment(ctx, CounterJobsSkipped)
		metrics.ObserveJob("skipped")
		return
	}

	doc, blobURI := p.parseDocument(ctx, raw, log)
	rec := p.normalizer.Normalize(raw, doc)
	rec.BlobURI = blobURI

	if !rec.DataComplete {
		tracker.Increment(ctx, CounterParsingErrors)
	}

	err = p.retry.Do(ctx, "persist job", FailureContext{Op: OpStore}, func(ctx context.Context) error {
		_, serr := p.jobs.Save(ctx, rec)
		return serr
	})
	if err != nil {
		log.Error("persist failed after retries", zap.Error(err))
		p.maybeAlert(ctx, err, FailureContext{Op: OpStore})
		tracker.Increment(ctx, CounterParsingErrors)
		metrics.ObserveJob("error")
		return
	}

	tracker.Increment(ctx, CounterJobsInserted)
	metrics.ObserveJob("inserted")
	log.Info("job record persisted",
		zap.String("status", string(rec.Status)),
		zap.Bool("data_complete", rec.DataComplete),
	)
}

// parseDocument fetches and parses the record's first attached document.
// Failures downgrade the record to incomplete instead of erroring: the link
// itself is still worth keeping.
func (p *Pipeline) parseDocument(ctx context.Context, raw RawJob, log *zap.Logger) (DocExtract, string) {
	if len(raw.PDFLinks) == 0 || p.docs == nil {
		return DocExtract{Incomplete: true, Errors: []string{"no document attached"}}, ""
	}
	url := raw.PDFLinks[0]

	var data []byte
	err := p.retry.Do(ctx, "fetch document", FailureContext{Op: OpFetch}, func(ctx context.Context) error {
		var ferr error
		data, ferr = p.docs.Fetch(ctx, url)
		return ferr
	})
	if err != nil {
		log.Warn("document fetch failed", zap.String("url", url), zap.Error(err))
		return DocExtract{Incomplete: true, Errors: []string{truncateMessage(err.Error(), 300)}}, ""
	}

	blobURI := p.archiveDocument(ctx, raw, data, log)

	doc, perr := p.docs.Parse(ctx, data)
	if perr != nil {
		verdict := Classify(perr, FailureContext{Op: OpDocParse})
		log.Warn("document parse failed",
			zap.String("url", url),
			zap.String("kind", string(verdict.Kind)),
			zap.Error(perr),
		)
		return DocExtract{Incomplete: true, Errors: []string{truncateMessage(perr.Error(), 300)}}, blobURI
	}
	return doc, blobURI
}

// archiveDocument stores the raw bytes for later reprocessing. Best-effort.
func (p *Pipeline) archiveDocument(ctx context.Context, raw RawJob, data []byte, log *zap.Logger) string {
	if p.blobs == nil {
		return ""
	}
	identity := ResolveIdentity(raw.AdvtNo, raw.PostName, raw.IssuedDate)
	blobPath := path.Join(p.cfg.BlobPrefix, identity+".pdf")
	uri, err := p.blobs.PutObject(ctx, blobPath, "application/pdf", data)
	if err != nil {
		log.Warn("document archive failed", zap.Error(err))
		return ""
	}
	return uri
}

// maybeAlert delivers an operator alert when the classifier calls for one.
// For AlertOnExhaustion categories this runs after the retry budget is
// already spent, so exhaustion is a given here.
func (p *Pipeline) maybeAlert(ctx context.Context, err error, fctx FailureContext) {
	if p.alerts == nil || err == nil {
		return
	}
	verdict := Classify(err, fctx)
	if verdict.Alert == AlertNever {
		return
	}
	severity := SeverityWarning
	if verdict.Kind == FailureStructureChange {
		severity = SeverityCritical
	}
	alert := Alert{
		Severity: severity,
		Title:    fmt.Sprintf("Scraper %s", verdict.Kind),
		Message:  truncateMessage(err.Error(), 500),
		Context:  map[string]string{"kind": string(verdict.Kind)},
	}
	metrics.ObserveAlert(string(severity))
	if derr := p.alerts.Deliver(ctx, alert); derr != nil {
		p.logger.Warn("alert delivery failed", zap.Error(derr))
	}
}

// CleanExit reports whether err is one of the no-op exits that should still
// produce a zero exit code.
func CleanExit(err error) bool {
	return errors.Is(err, ErrAlreadyLocked) || errors.Is(err, ErrDisabled)
}
