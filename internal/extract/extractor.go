// Package extract pulls raw job listings off the SPSC notice page. It is
// deliberately dumb selector-matching; everything with decision logic lives
// in the ingest package.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// Config controls the static extractor.
type Config struct {
	// URL is the listing page to scrape.
	URL string
	// UserAgent identifies the bot to the source site.
	UserAgent string
	// Timeout bounds the page fetch.
	Timeout time.Duration
	// RowSelector matches one listing row; defaults to table rows.
	RowSelector string
	// ContainerSelector must be present on the page, or the markup has
	// drifted.
	ContainerSelector string
}

var (
	advtNoRe = regexp.MustCompile(`(?i)\b\d{1,3}\s*/\s*SPSC\s*/[A-Z0-9/\s\-]*\d{4}\b`)
	dateRe   = regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b`)
)

// Extractor implements ingest.Extractor with a Colly collector.
type Extractor struct {
	cfg    Config
	clock  ingest.Clock
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, clock ingest.Clock, logger *zap.Logger) *Extractor {
	if cfg.RowSelector == "" {
		cfg.RowSelector = "table tbody tr, table tr"
	}
	if cfg.ContainerSelector == "" {
		cfg.ContainerSelector = "table"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, clock: clock, logger: logger}
}

// Extract fetches the listing page and yields one RawJob per row that
// carries at least a post name or a document link. Rows come back in page
// order.
func (e *Extractor) Extract(ctx context.Context) ([]ingest.RawJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(colly.Async(false))
	c.SetRequestTimeout(e.cfg.Timeout)
	if e.cfg.UserAgent != "" {
		c.UserAgent = e.cfg.UserAgent
	}

	var (
		raws          []ingest.RawJob
		containerSeen bool
		fetchErr      error
	)
	scrapedAt := e.clock.Now().UTC()

	c.OnHTML(e.cfg.ContainerSelector, func(_ *colly.HTMLElement) {
		containerSeen = true
	})
	c.OnHTML(e.cfg.RowSelector, func(el *colly.HTMLElement) {
		raw, ok := e.parseRow(el, scrapedAt)
		if ok {
			raws = append(raws, raw)
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(e.cfg.URL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", e.cfg.URL, err)
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.cfg.URL, fetchErr)
	}
	if !containerSeen {
		return nil, fmt.Errorf("expected element %q container not found on %s", e.cfg.ContainerSelector, e.cfg.URL)
	}

	e.logger.Debug("rows extracted", zap.Int("count", len(raws)))
	return raws, nil
}

// parseRow maps one table row into a RawJob.
func (e *Extractor) parseRow(el *colly.HTMLElement, scrapedAt time.Time) (ingest.RawJob, bool) {
	var links []string
	for _, href := range el.ChildAttrs("a[href]", "href") {
		links = append(links, el.Request.AbsoluteURL(href))
	}
	return MapCells(el.ChildTexts("td"), links, e.cfg.URL, scrapedAt)
}

// MapCells recognizes listing fields by shape rather than cell position,
// since the source site's column layout is unstable. Shared by the static
// and headless extractors.
func MapCells(cells, links []string, sourceURL string, scrapedAt time.Time) (ingest.RawJob, bool) {
	if len(cells) == 0 {
		return ingest.RawJob{}, false
	}

	raw := ingest.RawJob{
		SourceURL: sourceURL,
		ScrapedAt: scrapedAt,
	}
	for _, link := range links {
		if strings.HasSuffix(strings.ToLower(link), ".pdf") {
			raw.PDFLinks = append(raw.PDFLinks, link)
		}
	}

	var leftovers []string
	for _, cell := range cells {
		text := strings.TrimSpace(cell)
		switch {
		case text == "":
		case raw.AdvtNo == "" && advtNoRe.MatchString(text):
			raw.AdvtNo = advtNoRe.FindString(text)
		case raw.IssuedDate == "" && dateRe.MatchString(text) && len(text) < 16:
			raw.IssuedDate = dateRe.FindString(text)
		default:
			leftovers = append(leftovers, text)
		}
	}
	// The post name is whatever longest free-text cell remains.
	for _, text := range leftovers {
		if len(text) > len(raw.PostName) {
			raw.PostName = text
		}
	}

	if raw.PostName == "" && len(raw.PDFLinks) == 0 {
		return ingest.RawJob{}, false
	}
	return raw, true
}
