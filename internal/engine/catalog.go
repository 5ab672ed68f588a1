// Package engine defines the static catalog of analysis engines and the
// per-run state machine for each. The catalog is loaded once and never
// mutated; all workflow behavior lives in the pipeline package.
package engine

import "strings"

// Engine ids form a closed set. Every workflow variant addresses its stages
// through these identifiers and session maps are keyed by them.
const (
	IDPlanner       = "planner"
	IDLibrarian     = "librarian"
	IDFundamentals  = "fundamentals"
	IDTechnicals    = "technicals"
	IDSentiment     = "sentiment"
	IDMacro         = "macro"
	IDRisk          = "risk"
	IDValuation     = "valuation"
	IDSynthesizer   = "synthesizer"
	IDComprehensive = "comprehensive"
	IDComparisonA   = "comparison_a"
	IDComparisonB   = "comparison_b"
	IDComparator    = "comparator"
	IDSentinel      = "sentinel"
)

// Engine is an immutable catalog entry.
type Engine struct {
	ID             string
	Name           string
	Role           string
	PromptTemplate string
	// WebSearch attaches the provider search tool to this engine's calls.
	// Synthesis-class engines reason over supplied context instead.
	WebSearch bool
}

// Render substitutes {{KEY}} placeholders in the prompt template.
func (e Engine) Render(vars map[string]string) string {
	out := e.PromptTemplate
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// catalog holds every engine in presentation order.
var catalog = []Engine{
	{IDPlanner, "Lead Strategist", "Planning", promptPlanner, false},
	{IDLibrarian, "Data Librarian", "Research", promptLibrarian, true},
	{IDFundamentals, "Fundamentals Analyst", "Specialist", promptFundamentals, true},
	{IDTechnicals, "Technical Analyst", "Specialist", promptTechnicals, true},
	{IDSentiment, "Sentiment Analyst", "Specialist", promptSentiment, true},
	{IDMacro, "Macro Analyst", "Specialist", promptMacro, true},
	{IDRisk, "Risk Analyst", "Specialist", promptRisk, true},
	{IDValuation, "Valuation Analyst", "Specialist", promptValuation, true},
	{IDSynthesizer, "Chief Synthesizer", "Synthesis", promptSynthesizer, false},
	{IDComprehensive, "Comprehensive Analyst", "Analysis", promptComprehensive, true},
	{IDComparisonA, "Comparative Analyst A", "Analysis", promptComparison, true},
	{IDComparisonB, "Comparative Analyst B", "Analysis", promptComparison, true},
	{IDComparator, "Head-to-Head Judge", "Synthesis", promptComparator, false},
	{IDSentinel, "News Sentinel", "Monitoring", promptSentinel, true},
}

var byID = func() map[string]Engine {
	m := make(map[string]Engine, len(catalog))
	for _, e := range catalog {
		m[e.ID] = e
	}
	return m
}()

// specialistIDs are the independent deep-workflow stages, in execution order.
var specialistIDs = []string{
	IDFundamentals, IDTechnicals, IDSentiment, IDMacro, IDRisk, IDValuation,
}

// All returns every catalog entry in presentation order.
func All() []Engine {
	out := make([]Engine, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a catalog entry.
func ByID(id string) (Engine, bool) {
	e, ok := byID[id]
	return e, ok
}

// MustByID looks up a catalog entry for a known-fixed id.
// The catalog is static, so a miss is a programming error.
func MustByID(id string) Engine {
	e, ok := byID[id]
	if !ok {
		panic("engine: unknown id " + id)
	}
	return e
}

// Specialists returns the deep-workflow specialist engines in execution order.
func Specialists() []Engine {
	out := make([]Engine, 0, len(specialistIDs))
	for _, id := range specialistIDs {
		out = append(out, byID[id])
	}
	return out
}

// IsSpecialist reports whether id names a specialist stage.
func IsSpecialist(id string) bool {
	for _, sid := range specialistIDs {
		if sid == id {
			return true
		}
	}
	return false
}
