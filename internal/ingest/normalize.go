package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Day-first formats accepted for scraped dates, tried in order.
var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2/1/2006",
	"02/01/06",
	"02-01-06",
	"02.01.06",
}

// parseDayFirstDate parses DD/MM/YYYY-style text; the first matching layout
// wins.
func parseDayFirstDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

const (
	maxPostNameLen      = 200
	maxDepartmentLen    = 100
	maxQualificationLen = 1000

	defaultPostName   = "Position Not Specified"
	defaultDepartment = "SPSC"

	// defaultLastDateDays keeps records with an unreadable deadline
	// visible rather than dropped; the deadline is knowingly inaccurate.
	defaultLastDateDays = 30
)

// Placeholder strings the source site uses where a field is really absent.
var placeholderValues = map[string]struct{}{
	"n/a": {}, "na": {}, "nil": {}, "none": {}, "-": {}, "--": {}, "tbd": {}, "null": {},
}

func isPlaceholder(s string) bool {
	_, ok := placeholderValues[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Normalizer cleans raw extracted fields into a canonical JobRecord. It is
// total: every input yields a usable record, with defaults applied and
// problems surfaced as log warnings only.
type Normalizer struct {
	clock  Clock
	logger *zap.Logger
}

// NewNormalizer builds a Normalizer.
func NewNormalizer(clock Clock, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{clock: clock, logger: logger}
}

// Normalize merges a listing row and its document extract into a JobRecord.
// Never fails.
func (n *Normalizer) Normalize(raw RawJob, doc DocExtract) JobRecord {
	now := n.clock.Now().UTC()

	rec := JobRecord{
		AdvtNo:        n.normalizeAdvt(raw.AdvtNo, now),
		PostName:      n.normalizePostName(raw.PostName),
		Department:    n.normalizeDepartment(doc.Department),
		Qualification: normalizeQualification(doc.Qualification),
		TotalPosts:    n.normalizeTotalPosts(doc.TotalPosts),
		IssuedDate:    strings.TrimSpace(raw.IssuedDate),
		LastDate:      n.normalizeLastDate(doc.LastDate, now),
		PDFLinks:      raw.PDFLinks,
		DataComplete:  !doc.Incomplete,
		Metadata: JobMetadata{
			SourceURL:     raw.SourceURL,
			ParsingErrors: append([]string(nil), doc.Errors...),
		},
		ScrapedAt: raw.ScrapedAt,
		UpdatedAt: now,
	}
	if len(raw.PDFLinks) > 0 {
		rec.PDFURL = raw.PDFLinks[0]
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = now
	}

	rec.Identity = ResolveIdentity(raw.AdvtNo, raw.PostName, raw.IssuedDate)

	// A defaulted last date always lands in the future, so a record can
	// only read expired at creation when a real past deadline was parsed.
	if rec.LastDate.Before(now) {
		rec.Status = JobStatusExpired
	} else {
		rec.Status = JobStatusActive
	}

	n.logValidation(rec)
	return rec
}

func (n *Normalizer) normalizeAdvt(advtNo string, now time.Time) string {
	s := strings.ToUpper(strings.TrimSpace(advtNo))
	if s == "" || isPlaceholder(s) {
		s = fmt.Sprintf("GEN-%d-%d", now.Year(), now.UnixNano())
	}
	return s
}

func (n *Normalizer) normalizePostName(name string) string {
	s := collapseWhitespace(name)
	if s == "" || isPlaceholder(s) {
		return defaultPostName
	}
	return truncateMessage(s, maxPostNameLen)
}

func (n *Normalizer) normalizeDepartment(dept string) string {
	s := collapseWhitespace(dept)
	if s == "" || isPlaceholder(s) {
		return defaultDepartment
	}
	return truncateMessage(s, maxDepartmentLen)
}

func (n *Normalizer) normalizeTotalPosts(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 1
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		n.logger.Warn("unparsable total posts, defaulting to 1", zap.String("value", raw))
		return 1
	}
	return v
}

func (n *Normalizer) normalizeLastDate(raw string, now time.Time) time.Time {
	s := strings.TrimSpace(raw)
	if t, ok := parseDayFirstDate(s); ok {
		// End of day, so a deadline falling today still reads active.
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
	}
	n.logger.Warn("last date missing or unparsable, defaulting forward", zap.String("value", s))
	return now.AddDate(0, 0, defaultLastDateDays)
}

// logValidation emits soft diagnostics for missing required-ish fields. It
// never blocks the write.
func (n *Normalizer) logValidation(rec JobRecord) {
	var problems []string
	if strings.HasPrefix(rec.AdvtNo, "GEN-") {
		problems = append(problems, "advertisement number missing")
	}
	if len(rec.PostName) < 3 || rec.PostName == defaultPostName {
		problems = append(problems, "post name missing or implausible")
	}
	if rec.PDFURL == "" || !strings.HasPrefix(rec.PDFURL, "http") {
		problems = append(problems, "pdf url missing or malformed")
	}
	if len(problems) > 0 {
		n.logger.Warn("job record has validation issues",
			zap.String("identity", rec.Identity),
			zap.Strings("problems", problems),
		)
	}
}

// collapseWhitespace folds newlines and runs of spaces into single spaces.
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// normalizeQualification collapses horizontal whitespace but keeps paragraph
// breaks so multi-line requirements stay readable.
func normalizeQualification(s string) string {
	paragraphs := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = collapseWhitespace(p)
	}
	out := strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
	return truncateMessage(out, maxQualificationLen)
}
