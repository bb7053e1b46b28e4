// Package pdf fetches posting documents and extracts field candidates from
// their text by pattern matching. Missing fields are normal; only an
// unrecoverable fetch or an unreadable document is an error.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// minTextLen is the shortest extraction considered readable. Below this the
// document is almost certainly a scanned image with no text layer.
const minTextLen = 100

// maxDocumentBytes caps the download size.
const maxDocumentBytes = 20 << 20

// Parser implements ingest.DocParser with an HTTP client and docconv.
type Parser struct {
	client  *http.Client
	logger  *zap.Logger
	convert func(r io.Reader) (string, error)
}

// New builds a Parser. A nil client gets a 30s-timeout default.
func New(client *http.Client, logger *zap.Logger) *Parser {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		client: client,
		logger: logger,
		convert: func(r io.Reader) (string, error) {
			text, _, err := docconv.ConvertPDF(r)
			return text, err
		},
	}
}

// Fetch downloads the document bytes at url.
func (p *Parser) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: status code %d from %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read document body: %w", err)
	}
	return data, nil
}

// Parse extracts text from the PDF and pattern-matches field candidates out
// of it. Returns an error only when the document has no usable text at all.
func (p *Parser) Parse(_ context.Context, data []byte) (ingest.DocExtract, error) {
	text, err := p.convert(bytes.NewReader(data))
	if err != nil {
		return ingest.DocExtract{}, fmt.Errorf("could not parse document: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) < minTextLen {
		return ingest.DocExtract{}, fmt.Errorf("text too short (%d chars), document is likely scanned", len(text))
	}

	doc := ExtractFields(text)
	p.logger.Debug("document fields extracted",
		zap.Bool("incomplete", doc.Incomplete),
		zap.Int("text_len", len(text)),
	)
	return doc, nil
}

var (
	departmentRe    = regexp.MustCompile(`(?i)Department\s*(?:of|:)?\s*([^\n,.]{3,100})`)
	qualificationRe = regexp.MustCompile(`(?i)(?:Essential\s+)?Qualifications?\s*[:\-]?\s*((?s:.){10,1200}?)(?:\n\s*\n|Age\s+Limit|How\s+to\s+Apply|Last\s+Date|$)`)
	totalPostsRe    = regexp.MustCompile(`(?i)(?:Total\s+)?(?:No\.?\s*of\s+)?(?:Posts?|Vacanc(?:y|ies))\s*[:\-]?\s*(\d{1,4})\b`)
	lastDateRe      = regexp.MustCompile(`(?i)Last\s+Date[^\d]{0,40}(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})`)
)

// ExtractFields pulls the interesting fields out of extracted document text.
// Every field is optional; Incomplete is set when the headline ones are all
// absent.
func ExtractFields(text string) ingest.DocExtract {
	var doc ingest.DocExtract
	if m := departmentRe.FindStringSubmatch(text); m != nil {
		doc.Department = strings.TrimSpace(m[1])
	}
	if m := qualificationRe.FindStringSubmatch(text); m != nil {
		doc.Qualification = strings.TrimSpace(m[1])
	}
	if m := totalPostsRe.FindStringSubmatch(text); m != nil {
		doc.TotalPosts = m[1]
	}
	if m := lastDateRe.FindStringSubmatch(text); m != nil {
		doc.LastDate = m[1]
	}
	doc.Incomplete = doc.Department == "" && doc.Qualification == "" && doc.LastDate == ""
	if doc.Incomplete {
		doc.Errors = append(doc.Errors, "no structured fields recognized in document text")
	}
	return doc
}
