package pipeline

import (
	"context"
	"time"

	"tickerlab/internal/engine"
	"tickerlab/internal/history"
	"tickerlab/internal/logging"
)

// UpdateMode selects how aggressively an update pass re-examines the
// previous conclusions.
type UpdateMode int

const (
	// UpdateIncremental surfaces only material developments since the
	// previous run.
	UpdateIncremental UpdateMode = iota
	// UpdateFullRescan re-examines the whole picture against the previous
	// report.
	UpdateFullRescan
)

// VariantUpdate marks sessions refreshed by the sentinel pass.
const VariantUpdate Variant = "update"

func (m UpdateMode) instruction() string {
	if m == UpdateFullRescan {
		return "Re-examine the complete picture from scratch, using the previous report only as a baseline to diff against."
	}
	return "Focus strictly on material developments since the cutoff date. Do not restate unchanged conclusions."
}

// Update refreshes a prior session: a sentinel pass surfaces developments
// since the session's timestamp, then the synthesizer rewrites the report
// with those findings folded in. The result is re-saved under the same
// session id, which is why a durable history is required. All
// preconditions are checked before any network call.
func (o *Orchestrator) Update(ctx context.Context, prev *history.Session, mode UpdateMode) (*RunResult, error) {
	if prev == nil {
		return nil, &FatalError{Kind: FatalPrecondition, Message: "no previous analysis to update"}
	}
	prevReport := prev.SynthesizedReport()
	if prevReport == "" {
		return nil, &FatalError{Kind: FatalPrecondition, Message: "previous session has no synthesized report"}
	}
	if prev.UpdatedAt <= 0 {
		return nil, &FatalError{Kind: FatalPrecondition, Message: "previous session has no timestamp"}
	}
	if o.history == nil || !o.history.Durable() {
		return nil, &FatalError{Kind: FatalPrecondition, Message: "updating requires a signed-in durable history"}
	}

	logging.Pipeline("[Orchestrator] update: subject=%q session=%s mode=%d", prev.SubjectLabel, prev.ID, mode)

	res := &RunResult{
		Subject: prev.SubjectLabel,
		Variant: VariantUpdate,
		State:   StateRunning,
		Runs:    engine.NewRunSet(),
	}
	// Carry the prior engine results forward; only the sentinel and
	// synthesizer slots start a new cycle.
	for id, run := range prev.Engines {
		if run != nil {
			res.Runs[id] = run.Clone()
		}
	}

	cutoff := time.UnixMilli(prev.UpdatedAt).Format("2006-01-02")
	sentinelPrompt := engine.MustByID(engine.IDSentinel).Render(map[string]string{
		"SUBJECT":          prev.SubjectLabel,
		"PREVIOUS_REPORT":  prevReport,
		"CUTOFF_DATE":      cutoff,
		"MODE_INSTRUCTION": mode.instruction(),
	})
	if err := o.runStage(ctx, res, engine.IDSentinel, prev.SubjectLabel, sentinelPrompt); err != nil {
		res.State = StateAborted
		return res, err
	}
	if err := o.pause(ctx); err != nil {
		res.State = StateAborted
		return res, err
	}

	findings := res.Runs[engine.IDSentinel].ResultText
	prompt := engine.MustByID(engine.IDSynthesizer).Render(map[string]string{
		"SUBJECT": prev.SubjectLabel,
		"PLAN":    "Update pass: fold the sentinel findings into the prior report, keeping its structure and updating every affected conclusion.",
		"DOSSIER": findings,
		"REPORTS": "### Prior Report\n\n" + prevReport,
	})
	if err := o.runStage(ctx, res, engine.IDSynthesizer, prev.SubjectLabel, prompt); err != nil {
		res.State = StateAborted
		return res, err
	}

	res.State = StateCompleted
	res.Report = res.Runs[engine.IDSynthesizer].ResultText
	res.Saved = o.history.Save(ctx, prev.SubjectLabel, res.Runs, prev.ID)
	return res, nil
}
