// Package headless extracts listings through a rendered browser session.
// Used as a one-shot fallback when the static page yields too few rows,
// before the pipeline declares the source structure changed.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/extract"
	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// Config controls the headless extractor.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// RowSelector is the selector the page script walks after rendering.
	RowSelector string
}

// Extractor implements ingest.Extractor via chromedp.
type Extractor struct {
	cfg    Config
	clock  ingest.Clock
	logger *zap.Logger
}

// New builds an Extractor. The browser process is spawned per Extract call;
// the fallback fires at most once per run, so a warm browser buys nothing.
func New(cfg Config, clock ingest.Clock, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.RowSelector == "" {
		cfg.RowSelector = "table tr"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, clock: clock, logger: logger}
}

// rowJS walks the rendered DOM and returns the per-row fields the static
// extractor would otherwise read from the raw HTML.
const rowJS = `
(sel => Array.from(document.querySelectorAll(sel)).map(tr => ({
	cells: Array.from(tr.querySelectorAll('td')).map(td => td.innerText.trim()),
	links: Array.from(tr.querySelectorAll('a[href]')).map(a => a.href),
})).filter(r => r.cells.length > 0))
`

type domRow struct {
	Cells []string `json:"cells"`
	Links []string `json:"links"`
}

// Extract renders the listing page and maps its rows to RawJobs.
func (e *Extractor) Extract(ctx context.Context) ([]ingest.RawJob, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if e.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(e.cfg.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	taskCtx, cancelTask := context.WithTimeout(browserCtx, e.cfg.Timeout)
	defer cancelTask()

	var rows []domRow
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(e.cfg.URL),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(fmt.Sprintf("%s(%q)", rowJS, e.cfg.RowSelector), &rows),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", e.cfg.URL, err)
	}

	scrapedAt := e.clock.Now().UTC()
	raws := make([]ingest.RawJob, 0, len(rows))
	for _, row := range rows {
		raw, ok := extract.MapCells(row.Cells, row.Links, e.cfg.URL, scrapedAt)
		if ok {
			raws = append(raws, raw)
		}
	}
	e.logger.Info("headless extraction finished", zap.Int("rows", len(raws)))
	return raws, nil
}
