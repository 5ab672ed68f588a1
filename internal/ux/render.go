package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"tickerlab/internal/engine"
	"tickerlab/internal/history"
)

// RenderMarkdown renders a report for the terminal. With plain set, or when
// the renderer cannot be built, the raw markdown comes back unchanged.
func RenderMarkdown(text string, plain bool) string {
	if plain {
		return text
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// SessionLine formats one history entry for list output.
func SessionLine(s *history.Session) string {
	ts := time.UnixMilli(s.UpdatedAt).Format("2006-01-02 15:04")
	line := fmt.Sprintf("%s  %s  %s  %s",
		mutedStyle.Render(shortID(s.ID)),
		ts,
		s.SubjectLabel,
		VerdictBadge.Render(s.Verdict),
	)
	if s.TotalTokens > 0 {
		line += mutedStyle.Render(fmt.Sprintf("  %d tokens", s.TotalTokens))
	}
	return line
}

// SessionHeader formats the title block above a rendered report.
func SessionHeader(s *history.Session) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(s.SubjectLabel))
	b.WriteString("\n")
	meta := fmt.Sprintf("%s · %s · %d tokens",
		time.UnixMilli(s.UpdatedAt).Format("2006-01-02 15:04"),
		s.Verdict,
		s.TotalTokens,
	)
	b.WriteString(mutedStyle.Render(meta))
	if s.Summary != "" {
		b.WriteString("\n")
		b.WriteString(s.Summary)
	}
	b.WriteString("\n")
	return b.String()
}

// SourceList formats grounding citations collected across a session's runs.
// Duplicate URIs are listed once.
func SourceList(s *history.Session) string {
	seen := make(map[string]bool)
	var b strings.Builder
	for _, id := range engineOrder(s) {
		run, ok := s.Engines[id]
		if !ok {
			continue
		}
		for _, src := range run.Sources {
			if src.URI == "" || seen[src.URI] {
				continue
			}
			seen[src.URI] = true
			title := src.Title
			if title == "" {
				title = src.URI
			}
			fmt.Fprintf(&b, "  %s %s\n    %s\n", mutedStyle.Render("•"), title, mutedStyle.Render(src.URI))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return titleStyle.Render("Sources") + "\n" + b.String()
}

func engineOrder(s *history.Session) []string {
	order := make([]string, 0, len(s.Engines))
	for _, e := range engine.All() {
		if _, ok := s.Engines[e.ID]; ok {
			order = append(order, e.ID)
		}
	}
	return order
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
