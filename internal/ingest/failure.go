package ingest

import (
	"regexp"
	"strings"
)

// FailureKind is the closed set of failure categories the pipeline reacts to.
type FailureKind string

const (
	// FailureNetwork covers transient connectivity trouble: timeouts, DNS,
	// certificates, 5xx responses. Retried silently.
	FailureNetwork FailureKind = "NETWORK_ERROR"
	// FailureDocParse means the attached document could not be read
	// (scanned image, truncated text). Expected, never retried, never
	// alerted; the record is kept with dataComplete=false.
	FailureDocParse FailureKind = "PARSE_ERROR"
	// FailureStructureChange means the source page markup likely changed:
	// zero listings where some were expected, or every extraction
	// strategy exhausted. Needs a human, so it always alerts.
	FailureStructureChange FailureKind = "STRUCTURE_CHANGE"
	// FailurePersistence covers document-store trouble: permissions,
	// quota, deadlines. Retried; alerted only once retries run out.
	FailurePersistence FailureKind = "FIRESTORE_ERROR"
)

// FailureOp identifies which collaborator an error came from. It replaces
// the loose flag bag the classifier would otherwise need.
type FailureOp int

const (
	OpUnknown FailureOp = iota
	OpFetch
	OpDocParse
	OpStore
	OpExtract
)

// FailureContext describes where a failure happened and what the run had
// seen up to that point.
type FailureContext struct {
	Op           FailureOp
	JobsFound    int
	ExpectedJobs int
}

// AlertPolicy says when a failure category warrants an operator alert.
type AlertPolicy int

const (
	AlertNever AlertPolicy = iota
	AlertAlways
	AlertOnExhaustion
)

// Verdict is the classifier's output: category plus retry and alert policy.
type Verdict struct {
	Kind       FailureKind
	Retry      bool
	MaxRetries int
	Alert      AlertPolicy
	Message    string
}

var (
	networkPattern = regexp.MustCompile(`(?i)timeout|timed out|connection|econnrefused|econnreset|enotfound|dns|certificate|tls|socket hang up|network|unreachable|(?:http|status|code)[ :]{1,3}5\d\d\b`)
	docPattern     = regexp.MustCompile(`(?i)text too short|unreadable|scanned|no extractable text|not a pdf|corrupt|empty document|could not parse`)
	structPattern  = regexp.MustCompile(`(?i)no job listings|zero listings|container not found|selector|all extraction strategies|structure changed|expected element`)
	storePattern   = regexp.MustCompile(`(?i)permission denied|quota exceeded|deadline exceeded|resource exhausted|unauthenticated|firestore|document store`)
)

// Classify maps a failure into a category and policy. Precedence is fixed
// and first-match wins: network, doc-parse, structure-change, persistence,
// then network again as the safe default for anything unknown.
func Classify(err error, fctx FailureContext) Verdict {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	switch {
	case networkPattern.MatchString(msg):
		return networkVerdict(msg)
	case docPattern.MatchString(msg) || fctx.Op == OpDocParse:
		return Verdict{
			Kind:    FailureDocParse,
			Alert:   AlertNever,
			Message: msg,
		}
	case structPattern.MatchString(msg) || unexpectedZeroResult(fctx):
		return Verdict{
			Kind:    FailureStructureChange,
			Alert:   AlertAlways,
			Message: msg,
		}
	case storePattern.MatchString(msg) || fctx.Op == OpStore:
		return Verdict{
			Kind:       FailurePersistence,
			Retry:      true,
			MaxRetries: 3,
			Alert:      AlertOnExhaustion,
			Message:    msg,
		}
	default:
		// Unknown failures are assumed transient.
		return networkVerdict(msg)
	}
}

func networkVerdict(msg string) Verdict {
	return Verdict{
		Kind:       FailureNetwork,
		Retry:      true,
		MaxRetries: 2,
		Alert:      AlertNever,
		Message:    msg,
	}
}

func unexpectedZeroResult(fctx FailureContext) bool {
	return fctx.Op == OpExtract && fctx.JobsFound == 0 && fctx.ExpectedJobs > 0
}

// truncateMessage bounds alert/record payloads built from error text.
func truncateMessage(msg string, max int) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= max {
		return msg
	}
	return msg[:max] + "..."
}
