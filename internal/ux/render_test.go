package ux

import (
	"strings"
	"testing"

	"tickerlab/internal/engine"
	"tickerlab/internal/history"
)

func renderTestSession() *history.Session {
	comprehensive := engine.NewRun(engine.IDComprehensive)
	comprehensive.Succeed("body", engine.TokenUsage{TotalTokens: 900}, []engine.Source{
		{URI: "https://example.com/report", Title: "Quarterly Report"},
		{URI: "https://example.com/report", Title: "Quarterly Report"},
	})
	synth := engine.NewRun(engine.IDSynthesizer)
	synth.Succeed("## Final\n\nFINAL VERDICT: BUY", engine.TokenUsage{TotalTokens: 100}, []engine.Source{
		{URI: "https://example.com/filing"},
	})
	return &history.Session{
		ID:           "0c9f1db2-5a57-4f7e-9a11-deadbeef0001",
		SubjectLabel: "RELIANCE",
		UpdatedAt:    1700000000000,
		Engines: map[string]*engine.Run{
			engine.IDComprehensive: comprehensive,
			engine.IDSynthesizer:   synth,
		},
		TotalTokens: 1000,
		Verdict:     "BUY",
		Summary:     "Strong refining margins.",
	}
}

func TestRenderMarkdownPlain(t *testing.T) {
	text := "# Heading\n\nSome **bold** text."
	if got := RenderMarkdown(text, true); got != text {
		t.Errorf("plain mode must return input unchanged, got %q", got)
	}
}

func TestSessionLine(t *testing.T) {
	line := SessionLine(renderTestSession())
	for _, want := range []string{"0c9f1db2", "RELIANCE", "BUY", "1000 tokens"} {
		if !strings.Contains(line, want) {
			t.Errorf("list line missing %q:\n%s", want, line)
		}
	}
	if strings.Contains(line, "deadbeef") {
		t.Errorf("list line should use the short id form:\n%s", line)
	}
}

func TestSessionHeader(t *testing.T) {
	header := SessionHeader(renderTestSession())
	for _, want := range []string{"RELIANCE", "BUY", "1000 tokens", "Strong refining margins."} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q:\n%s", want, header)
		}
	}
}

func TestSourceListDeduplicates(t *testing.T) {
	out := SourceList(renderTestSession())
	if got := strings.Count(out, "https://example.com/report"); got != 1 {
		t.Errorf("duplicate source listed %d times, want 1:\n%s", got, out)
	}
	if !strings.Contains(out, "Quarterly Report") {
		t.Errorf("source title missing:\n%s", out)
	}
	if !strings.Contains(out, "https://example.com/filing") {
		t.Errorf("untitled source should fall back to its URI:\n%s", out)
	}
}

func TestSourceListEmpty(t *testing.T) {
	s := &history.Session{
		ID:      "s1",
		Engines: map[string]*engine.Run{},
	}
	if out := SourceList(s); out != "" {
		t.Errorf("sessions without sources should render nothing, got %q", out)
	}
}
