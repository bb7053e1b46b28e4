// Package ingest implements the SPSC job ingestion pipeline: identity
// resolution, deduplication, normalization, failure classification, retry
// policy, run lifecycle tracking and the safety gates that guard a run.
package ingest

import "time"

// JobStatus reflects whether a posting's application window is still open.
type JobStatus string

const (
	JobStatusActive  JobStatus = "active"
	JobStatusExpired JobStatus = "expired"
)

// RunStatus is the lifecycle state of one scrape run. Running is the only
// non-terminal state.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

// RawJob is a single listing row as yielded by the extraction collaborator,
// before any cleaning.
type RawJob struct {
	PostName   string    `json:"postName"`
	AdvtNo     string    `json:"advtNo"`
	IssuedDate string    `json:"issuedDate"`
	PDFLinks   []string  `json:"pdfLinks"`
	SourceURL  string    `json:"sourceUrl"`
	ScrapedAt  time.Time `json:"scrapedAt"`
}

// DocExtract carries the field candidates pulled out of a posting's attached
// PDF. The zero value means "nothing extracted but nothing failed either";
// Incomplete marks an explicit extraction failure.
type DocExtract struct {
	Department    string   `json:"department"`
	Qualification string   `json:"qualification"`
	TotalPosts    string   `json:"totalPosts"`
	LastDate      string   `json:"lastDate"`
	Incomplete    bool     `json:"incomplete"`
	Errors        []string `json:"errors,omitempty"`
}

// JobMetadata holds provenance and diagnostics for a job record.
type JobMetadata struct {
	SourceURL     string   `json:"sourceUrl,omitempty"`
	ParsingErrors []string `json:"parsingErrors,omitempty"`
}

// JobRecord is the canonical persisted shape of one job posting. Identity is
// the document key; see ResolveIdentity for how it is derived.
type JobRecord struct {
	Identity      string      `json:"identity"`
	AdvtNo        string      `json:"advtNo"`
	PostName      string      `json:"postName"`
	Department    string      `json:"department"`
	Qualification string      `json:"qualification"`
	TotalPosts    int         `json:"totalPosts"`
	IssuedDate    string      `json:"issuedDate,omitempty"`
	LastDate      time.Time   `json:"lastDate"`
	PDFURL        string      `json:"pdfUrl,omitempty"`
	PDFLinks      []string    `json:"pdfLinks,omitempty"`
	BlobURI       string      `json:"blobUri,omitempty"`
	Status        JobStatus   `json:"status"`
	DataComplete  bool        `json:"dataComplete"`
	Metadata      JobMetadata `json:"metadata"`
	ScrapedAt     time.Time   `json:"scrapedAt"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// RunRecord tracks one scrape execution end to end. Counters only ever go up
// within a run; FinishedAt stays nil until finalization.
type RunRecord struct {
	RunID              string     `json:"runId"`
	Status             RunStatus  `json:"status"`
	JobsFound          int        `json:"jobsFound"`
	JobsInserted       int        `json:"jobsInserted"`
	JobsSkipped        int        `json:"jobsSkipped"`
	ParsingErrorsCount int        `json:"parsingErrorsCount"`
	StartedAt          time.Time  `json:"startedAt"`
	FinishedAt         *time.Time `json:"finishedAt,omitempty"`
	FatalError         string     `json:"fatalError,omitempty"`
}

// Collections used in the document store.
const (
	CollectionJobs     = "jobs"
	CollectionRuns     = "scraper_runs"
	CollectionLocks    = "scraper_locks"
	CollectionControls = "system_controls"
)

// Singleton document keys for the safety gates.
const (
	LockKey       = "current"
	KillSwitchKey = "scraper"
)
