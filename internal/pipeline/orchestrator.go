package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tickerlab/internal/config"
	"tickerlab/internal/engine"
	"tickerlab/internal/history"
	"tickerlab/internal/logging"
)

// Variant names the workflow shape that produced a run.
type Variant string

const (
	VariantQuick      Variant = "quick"
	VariantDeep       Variant = "deep"
	VariantComparison Variant = "comparison"
)

// RunState is the lifecycle of one workflow run.
type RunState int

const (
	StateNotStarted RunState = iota
	StateRunning
	StateCompleted
	StateAborted
)

// Config carries the orchestration policy knobs. Zero values select
// production defaults, except StageDelay where zero disables pacing.
type Config struct {
	PrimaryModel  string
	FallbackModel string
	StageDelay    time.Duration
	Quorum        int
	MaxRetries    int
	BackoffBase   time.Duration
}

func (c *Config) normalize() {
	if c.PrimaryModel == "" {
		c.PrimaryModel = config.DefaultModel
	}
	if c.Quorum <= 0 {
		c.Quorum = config.DefaultQuorum
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = config.DefaultBackoffBase
	}
}

// StageObserver receives a snapshot of an engine run every time its status
// changes. Called from the workflow goroutine; implementations decide
// their own hand-off to a UI loop.
type StageObserver func(run engine.Run)

// UsageRecorder receives per-call token accounting.
type UsageRecorder interface {
	Record(ctx context.Context, engineID, subject, modelID string, usage engine.TokenUsage)
}

// stageInvoker is what the orchestrator needs from the retry layer.
type stageInvoker interface {
	Run(ctx context.Context, engineID, modelID, fallbackModelID, prompt string) (*EngineResponse, error)
}

// Orchestrator drives the fixed multi-stage workflows over the engine
// catalog: quick single-shot, two-subject comparison and the deep
// planner/librarian/specialists/synthesizer chain.
type Orchestrator struct {
	invoker  stageInvoker
	cfg      Config
	history  *history.Service
	observer StageObserver
	recorder UsageRecorder
}

// NewOrchestrator builds an orchestrator calling the model through client.
func NewOrchestrator(client CallClient, cfg Config) *Orchestrator {
	cfg.normalize()
	return &Orchestrator{
		invoker: NewInvoker(client, cfg.MaxRetries, cfg.BackoffBase),
		cfg:     cfg,
	}
}

// SetObserver registers the per-stage status callback.
func (o *Orchestrator) SetObserver(fn StageObserver) { o.observer = fn }

// SetUsageRecorder registers the token accounting sink.
func (o *Orchestrator) SetUsageRecorder(r UsageRecorder) { o.recorder = r }

// SetHistory attaches the session history used to persist completed runs.
func (o *Orchestrator) SetHistory(h *history.Service) { o.history = h }

// AnalyzeOptions select the workflow shape for one subject.
type AnalyzeOptions struct {
	// Deep runs the full multi-engine chain. Takes precedence over the
	// comparison pattern in the subject.
	Deep bool
	// Hypothesis is an optional user thesis the engines must address.
	Hypothesis string
	// NoSave skips session persistence after completion.
	NoSave bool
}

// RunResult is the outcome of one workflow run.
type RunResult struct {
	Subject string
	Variant Variant
	State   RunState
	Runs    map[string]*engine.Run
	// Report is the synthesized report text (empty unless Completed).
	Report string
	// Saved is the persisted session, nil when saving was skipped or failed.
	Saved *history.Session
}

var comparisonRe = regexp.MustCompile(`(?i)^\s*(.+?)\s+vs\.?\s+(.+?)\s*$`)

// ParseComparison splits a "X vs Y" subject into its two sides.
func ParseComparison(subject string) (string, string, bool) {
	m := comparisonRe.FindStringSubmatch(subject)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// Analyze runs the workflow variant selected by the subject shape and
// options, persists the completed session and returns the outcome. The
// returned error is a *FatalError unless the context was canceled.
func (o *Orchestrator) Analyze(ctx context.Context, subject string, opts AnalyzeOptions) (*RunResult, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, &FatalError{Kind: FatalPrecondition, Message: "subject is required"}
	}

	res := &RunResult{Subject: subject, Runs: engine.NewRunSet(), State: StateRunning}

	var err error
	a, b, isComparison := ParseComparison(subject)
	switch {
	case opts.Deep:
		res.Variant = VariantDeep
		err = o.runDeep(ctx, res, subject, opts.Hypothesis)
	case isComparison:
		res.Variant = VariantComparison
		err = o.runComparison(ctx, res, a, b)
	default:
		res.Variant = VariantQuick
		err = o.runQuick(ctx, res, subject, opts.Hypothesis)
	}
	if err != nil {
		res.State = StateAborted
		return res, err
	}

	res.State = StateCompleted
	res.Report = res.Runs[engine.IDSynthesizer].ResultText
	if o.history != nil && !opts.NoSave {
		res.Saved = o.history.Save(ctx, subject, res.Runs, "")
	}
	return res, nil
}

// runQuick issues the single comprehensive call and mirrors its output
// into the synthesizer slot so downstream consumers never special-case
// the variant.
func (o *Orchestrator) runQuick(ctx context.Context, res *RunResult, subject, hypothesis string) error {
	logging.Pipeline("[Orchestrator] quick analysis: subject=%q", subject)
	prompt := engine.MustByID(engine.IDComprehensive).Render(map[string]string{
		"SUBJECT":    subject,
		"HYPOTHESIS": hypothesisInstruction(hypothesis),
	})
	if err := o.runStage(ctx, res, engine.IDComprehensive, subject, prompt); err != nil {
		return err
	}
	o.mirrorIntoSynthesizer(res, engine.IDComprehensive)
	return nil
}

// runComparison analyzes both subjects independently, paced by the
// inter-call delay, then synthesizes the head-to-head verdict.
func (o *Orchestrator) runComparison(ctx context.Context, res *RunResult, subjectA, subjectB string) error {
	logging.Pipeline("[Orchestrator] comparison: %q vs %q", subjectA, subjectB)

	promptA := engine.MustByID(engine.IDComparisonA).Render(map[string]string{"SUBJECT": subjectA})
	if err := o.runStage(ctx, res, engine.IDComparisonA, subjectA, promptA); err != nil {
		return err
	}
	if err := o.pause(ctx); err != nil {
		return err
	}

	promptB := engine.MustByID(engine.IDComparisonB).Render(map[string]string{"SUBJECT": subjectB})
	if err := o.runStage(ctx, res, engine.IDComparisonB, subjectB, promptB); err != nil {
		return err
	}
	if err := o.pause(ctx); err != nil {
		return err
	}

	prompt := engine.MustByID(engine.IDComparator).Render(map[string]string{
		"SUBJECT_A": subjectA,
		"SUBJECT_B": subjectB,
		"REPORT_A":  res.Runs[engine.IDComparisonA].ResultText,
		"REPORT_B":  res.Runs[engine.IDComparisonB].ResultText,
	})
	if err := o.runStage(ctx, res, engine.IDComparator, res.Subject, prompt); err != nil {
		return err
	}
	o.mirrorIntoSynthesizer(res, engine.IDComparator)
	return nil
}

// runDeep drives the planner -> librarian -> specialists -> synthesizer
// chain. Specialists run strictly sequentially with the inter-call delay;
// their failures stay isolated and the quorum check decides whether
// synthesis may proceed.
func (o *Orchestrator) runDeep(ctx context.Context, res *RunResult, subject, hypothesis string) error {
	logging.Pipeline("[Orchestrator] deep analysis: subject=%q", subject)
	timer := logging.StartTimer(logging.CategoryPipeline, "deep_workflow")
	defer timer.Stop()

	plannerPrompt := engine.MustByID(engine.IDPlanner).Render(map[string]string{
		"SUBJECT":    subject,
		"HYPOTHESIS": hypothesisInstruction(hypothesis),
	})
	if err := o.runStage(ctx, res, engine.IDPlanner, subject, plannerPrompt); err != nil {
		return err
	}
	if err := o.pause(ctx); err != nil {
		return err
	}

	plan := res.Runs[engine.IDPlanner].ResultText
	librarianPrompt := engine.MustByID(engine.IDLibrarian).Render(map[string]string{
		"SUBJECT": subject,
		"PLAN":    plan,
	})
	if err := o.runStage(ctx, res, engine.IDLibrarian, subject, librarianPrompt); err != nil {
		return err
	}

	dossier := res.Runs[engine.IDLibrarian].ResultText
	succeeded := 0
	for _, spec := range engine.Specialists() {
		if err := o.pause(ctx); err != nil {
			return err
		}
		prompt := spec.Render(map[string]string{
			"SUBJECT": subject,
			"PLAN":    plan,
			"DOSSIER": dossier,
		})
		if err := o.runStage(ctx, res, spec.ID, subject, prompt); err != nil {
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		succeeded++
	}

	total := len(engine.Specialists())
	if succeeded < o.cfg.Quorum {
		logging.PipelineError("[Orchestrator] quorum not met: %d/%d specialists succeeded, need %d", succeeded, total, o.cfg.Quorum)
		return &FatalError{
			Kind:    FatalQuorum,
			Message: fmt.Sprintf("only %d of %d specialist analyses succeeded, need %d", succeeded, total, o.cfg.Quorum),
		}
	}
	logging.Pipeline("[Orchestrator] quorum met: %d/%d specialists succeeded", succeeded, total)

	if err := o.pause(ctx); err != nil {
		return err
	}
	prompt := engine.MustByID(engine.IDSynthesizer).Render(map[string]string{
		"SUBJECT": subject,
		"PLAN":    plan,
		"DOSSIER": dossier,
		"REPORTS": specialistDigest(res.Runs),
	})
	return o.runStage(ctx, res, engine.IDSynthesizer, subject, prompt)
}

// runStage executes one engine call and maintains its run slot.
func (o *Orchestrator) runStage(ctx context.Context, res *RunResult, engineID, subject, prompt string) error {
	run := res.Runs[engineID]
	run.Begin()
	o.emit(run)

	timer := logging.StartTimer(logging.CategoryPipeline, engineID)
	resp, err := o.invoker.Run(ctx, engineID, o.cfg.PrimaryModel, o.cfg.FallbackModel, prompt)
	timer.Stop()
	if err != nil {
		run.Fail(failureMessage(err))
		o.emit(run)
		logging.PipelineError("[Orchestrator] %s failed: %v", engineID, err)
		return err
	}

	run.Succeed(resp.Text, resp.Usage, resp.Sources)
	o.emit(run)
	logging.Pipeline("[Orchestrator] %s completed: model=%s tokens=%d", engineID, resp.ModelID, resp.Usage.TotalTokens)
	if o.recorder != nil {
		o.recorder.Record(ctx, engineID, subject, resp.ModelID, resp.Usage)
	}
	return nil
}

// mirrorIntoSynthesizer copies a standalone report into the synthesizer
// slot. Only the text moves; token accounting stays on the producing
// engine so session totals are not double counted.
func (o *Orchestrator) mirrorIntoSynthesizer(res *RunResult, fromID string) {
	src := res.Runs[fromID]
	syn := res.Runs[engine.IDSynthesizer]
	syn.Begin()
	syn.Succeed(src.ResultText, engine.TokenUsage{}, nil)
	o.emit(syn)
}

// pause waits the configured inter-call delay, honoring cancellation.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.cfg.StageDelay <= 0 {
		return nil
	}
	logging.PipelineDebug("[Orchestrator] pacing %v before next call", o.cfg.StageDelay)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.cfg.StageDelay):
		return nil
	}
}

func (o *Orchestrator) emit(run *engine.Run) {
	if o.observer != nil {
		o.observer(*run.Clone())
	}
}

func hypothesisInstruction(hypothesis string) string {
	hypothesis = strings.TrimSpace(hypothesis)
	if hypothesis == "" {
		return ""
	}
	return "User hypothesis to evaluate explicitly: " + hypothesis
}

// specialistDigest concatenates the specialist outputs for synthesis.
// Successful runs become blocks tagged with the engine's display name;
// failed runs collapse to an inline unavailability marker.
func specialistDigest(runs map[string]*engine.Run) string {
	var b strings.Builder
	for _, spec := range engine.Specialists() {
		run := runs[spec.ID]
		if run != nil && run.Status == engine.StatusSuccess {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", spec.Name, run.ResultText)
			continue
		}
		fmt.Fprintf(&b, "[%s analysis unavailable: stage failed]\n\n", spec.Name)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func failureMessage(err error) string {
	if fe, ok := AsFatal(err); ok {
		return fe.Message
	}
	return err.Error()
}
