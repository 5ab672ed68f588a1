package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"tickerlab/internal/engine"
	"tickerlab/internal/gemini"
	"tickerlab/internal/history"
	"tickerlab/internal/pipeline"
	"tickerlab/internal/usage"
	"tickerlab/internal/ux"
)

func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// handleSignals cancels ctx on SIGINT/SIGTERM. The returned stop function
// detaches the handler.
func handleSignals(cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			cancel()
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}

// openHistory builds the session history over the configured backend:
// MongoDB scoped to the configured user when available, the local JSON
// file otherwise. With requireDurable set a failed MongoDB connection is
// an error instead of a silent local fallback.
func openHistory(ctx context.Context, requireDurable bool) (*history.Service, error) {
	if cfg.DurableScope() && !localOnly {
		store, err := history.NewMongoStore(ctx, history.MongoOptions{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			OwnerID:  cfg.User.ID,
			Timeout:  cfg.MongoTimeout(),
		})
		if err == nil {
			return history.NewService(store, true), nil
		}
		if requireDurable {
			return nil, fmt.Errorf("failed to connect durable history: %w", err)
		}
		fmt.Fprintf(os.Stderr, "warning: durable history unavailable (%v), using local history\n", err)
	}
	store, err := history.NewLocalStore(cfg.ResolvedDataDir(), cfg.History.LocalCap)
	if err != nil {
		return nil, fmt.Errorf("failed to open local history: %w", err)
	}
	return history.NewService(store, false), nil
}

// newOrchestrator wires the workflow orchestrator with history and the
// token ledger. The cleanup function closes the ledger.
func newOrchestrator(client *gemini.Client, svc *history.Service) (*pipeline.Orchestrator, func()) {
	orch := pipeline.NewOrchestrator(client, pipeline.Config{
		PrimaryModel:  cfg.Gemini.Model,
		FallbackModel: cfg.Gemini.FallbackModel,
		StageDelay:    cfg.StageDelay(),
		Quorum:        cfg.Pipeline.Quorum,
		MaxRetries:    cfg.Pipeline.MaxRetries,
		BackoffBase:   cfg.BackoffBase(),
	})
	orch.SetHistory(svc)

	cleanup := func() {}
	if ledger, err := usage.NewLedger(cfg.ResolvedDataDir()); err == nil {
		orch.SetUsageRecorder(ledger)
		cleanup = func() { _ = ledger.Close() }
	} else {
		fmt.Fprintf(os.Stderr, "warning: usage ledger unavailable: %v\n", err)
	}
	return orch, cleanup
}

// runWorkflow executes start under the live progress UI, or with plain
// line output when requested or when stdout is not a terminal.
func runWorkflow(ctx context.Context, cancel context.CancelFunc, orch *pipeline.Orchestrator, title string, order []string, start func(context.Context) (*pipeline.RunResult, error)) (*pipeline.RunResult, error) {
	if plainOutput || !isTTY() {
		orch.SetObserver(printStageLine)
		return start(ctx)
	}

	// Stage events flow from the workflow goroutine into the UI loop.
	// Buffered so a quit UI never blocks the workflow.
	events := make(chan tea.Msg, 64)
	orch.SetObserver(func(run engine.Run) { events <- ux.StageMsg(run) })

	var res *pipeline.RunResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := start(gctx)
		res = r
		events <- ux.DoneMsg{Err: err}
		return err
	})

	prog := tea.NewProgram(ux.NewProgress(title, order, events))
	final, uiErr := prog.Run()
	interrupted := false
	if m, ok := final.(ux.ProgressModel); ok {
		interrupted = m.Interrupted()
	}
	if interrupted {
		cancel()
	}
	err := g.Wait()
	if uiErr != nil {
		return nil, fmt.Errorf("progress display failed: %w", uiErr)
	}
	if interrupted {
		return nil, fmt.Errorf("workflow interrupted")
	}
	return res, err
}

func printStageLine(run engine.Run) {
	name := engine.MustByID(run.EngineID).Name
	switch run.Status {
	case engine.StatusLoading:
		fmt.Printf("… %s\n", name)
	case engine.StatusSuccess:
		fmt.Printf("✔ %s (%d tokens)\n", name, run.TokenUsage.TotalTokens)
	case engine.StatusError:
		fmt.Printf("✖ %s: %s\n", name, run.ErrorMessage)
	}
}

func workflowTitle(v pipeline.Variant, subject string) string {
	switch v {
	case pipeline.VariantDeep:
		return "Deep analysis · " + subject
	case pipeline.VariantComparison:
		return "Head-to-head · " + subject
	case pipeline.VariantUpdate:
		return "Update · " + subject
	default:
		return "Quick analysis · " + subject
	}
}

// reportFatal surfaces the user-facing hint for workflow failures before
// the raw error propagates to main.
func reportFatal(err error) error {
	if fe, ok := pipeline.AsFatal(err); ok {
		fmt.Fprintln(os.Stderr, ux.ErrorBanner.Render(fe.UserMessage()))
	}
	return err
}

func printReport(res *pipeline.RunResult) {
	fmt.Println()
	fmt.Println(ux.RenderMarkdown(res.Report, plainOutput || !isTTY()))
	if srcs := ux.SourceList(&history.Session{Engines: res.Runs}); srcs != "" {
		fmt.Println(srcs)
	}
	if res.Saved != nil {
		fmt.Printf("Saved as %s\n", res.Saved.ID)
	}
}

// resolveSession finds a saved session by full id or unique prefix, so the
// short ids shown by `history list` work everywhere an id is accepted.
func resolveSession(svc *history.Service, idOrPrefix string) (*history.Session, error) {
	if idOrPrefix == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if sess, ok := svc.ByID(idOrPrefix); ok {
		return sess, nil
	}
	var matches []*history.Session
	for _, sess := range svc.Sessions() {
		if strings.HasPrefix(sess.ID, idOrPrefix) {
			matches = append(matches, sess)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("no saved analysis matches %q", idOrPrefix)
	default:
		return nil, fmt.Errorf("%q matches %d sessions, use the full id", idOrPrefix, len(matches))
	}
}
