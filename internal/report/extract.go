// Package report derives display metadata from a synthesized report body:
// a short verdict label and a one-line thesis for history lists. Extraction
// is best-effort over marker lines the synthesis prompts request; malformed
// input degrades to defaults, never to an error.
package report

import (
	"regexp"
	"strings"
)

// DefaultVerdict is used when no verdict marker is found.
const DefaultVerdict = "ANALYZED"

const (
	// minSummaryLen filters headings and fragments when falling back to the
	// first content-bearing line.
	minSummaryLen = 25
	maxVerdictLen = 48
)

var (
	verdictRe = regexp.MustCompile(`(?im)^[\s>*_#]*FINAL\s+VERDICT\s*[:\-]\s*(.+)$`)
	thesisRe  = regexp.MustCompile(`(?im)^[\s>*_#]*THESIS\s*[:\-]\s*(.+)$`)
)

// Metadata is the derived list-display information for one report.
type Metadata struct {
	Verdict string
	Summary string
}

// Extract pulls {verdict, summary} out of a synthesized report body.
func Extract(text string) Metadata {
	return Metadata{
		Verdict: extractVerdict(text),
		Summary: extractSummary(text),
	}
}

func extractVerdict(text string) string {
	m := verdictRe.FindStringSubmatch(text)
	if m == nil {
		return DefaultVerdict
	}
	verdict := cleanInline(m[1])
	if verdict == "" {
		return DefaultVerdict
	}
	if len(verdict) > maxVerdictLen {
		verdict = strings.TrimSpace(verdict[:maxVerdictLen])
	}
	return verdict
}

func extractSummary(text string) string {
	if m := thesisRe.FindStringSubmatch(text); m != nil {
		if summary := cleanInline(m[1]); summary != "" {
			return summary
		}
	}

	// No thesis marker: first content-bearing line, skipping markdown
	// structure and the marker lines themselves.
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "|") {
			continue
		}
		if verdictRe.MatchString(trimmed) || thesisRe.MatchString(trimmed) {
			continue
		}
		cleaned := cleanInline(trimmed)
		if len(cleaned) >= minSummaryLen {
			return cleaned
		}
	}
	return ""
}

// cleanInline strips markdown emphasis and blockquote leftovers so the
// stored label is plain text.
func cleanInline(s string) string {
	s = strings.NewReplacer("**", "", "*", "", "__", "", "`", "").Replace(s)
	s = strings.TrimLeft(s, "> ")
	return strings.TrimSpace(s)
}
