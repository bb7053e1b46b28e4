package ingest

import (
	"regexp"
	"strings"
)

// fallbackPrefix marks identities synthesized without an advertisement
// number. A value carrying it must never be mistaken for a real advt number
// on a later pass, or it would be re-normalized into double-prefixed junk.
const fallbackPrefix = "SPSC_"

const noDateMarker = "NODATE"

// maxSlugLen bounds the post-name slice used in fallback identities.
const maxSlugLen = 30

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	advtCharsRe   = regexp.MustCompile(`[^A-Z0-9/\-]`)
	nonAlnumRunRe = regexp.MustCompile(`[^A-Z0-9]+`)
	digitsRe      = regexp.MustCompile(`\D`)
)

// ResolveIdentity computes the canonical document key for a posting. Pure
// and deterministic: the same inputs always yield the same identity.
//
// With an advertisement number, the number alone is normalized so the same
// advertisement survives re-scraping noise (case, spacing, punctuation):
// "19 / spsc / exam / 2025" and "19/SPSC/EXAM/2025" both become
// "19_SPSC_EXAM_2025". Without one, a weaker identity is synthesized from
// the issued date and post name, e.g. "SPSC_20251211_JUNIOR_ENGINEER".
func ResolveIdentity(advtNo, postName, issuedDate string) string {
	trimmed := strings.TrimSpace(advtNo)
	if trimmed != "" && !strings.HasPrefix(strings.ToUpper(trimmed), fallbackPrefix) {
		return normalizeAdvtNo(trimmed)
	}
	return fallbackIdentity(postName, issuedDate)
}

func normalizeAdvtNo(advtNo string) string {
	s := strings.ToUpper(advtNo)
	s = whitespaceRe.ReplaceAllString(s, "")
	s = advtCharsRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func fallbackIdentity(postName, issuedDate string) string {
	return fallbackPrefix + datePart(issuedDate) + "_" + slugPart(postName)
}

// datePart renders the issued date as YYYYMMDD when it parses, raw digits
// when it does not, and NODATE when absent.
func datePart(issuedDate string) string {
	issuedDate = strings.TrimSpace(issuedDate)
	if issuedDate == "" {
		return noDateMarker
	}
	if t, ok := parseDayFirstDate(issuedDate); ok {
		return t.Format("20060102")
	}
	digits := digitsRe.ReplaceAllString(issuedDate, "")
	if digits == "" {
		return noDateMarker
	}
	return digits
}

// slugPart is an uppercased, underscore-separated, truncated slice of the
// post name. Two scrapes of the same posting only reconcile through this
// path if the extracted text matches exactly.
func slugPart(postName string) string {
	s := strings.ToUpper(strings.TrimSpace(postName))
	s = nonAlnumRunRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "UNTITLED"
	}
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "_")
	}
	return s
}
