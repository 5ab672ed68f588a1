package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tickerlab/internal/gemini"
	"tickerlab/internal/pipeline"
	"tickerlab/internal/ux"
)

var (
	analyzeDeep       bool
	analyzeHypothesis string
	analyzeNoSave     bool
	plainOutput       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze SUBJECT...",
	Short: "Run a research workflow for a ticker or topic",
	Long: `Runs a research workflow and prints the synthesized report.

A plain subject gets one comprehensive web-grounded analysis. A subject of
the form "A vs B" runs both sides and a head-to-head verdict. With --deep
the full chain runs: a planning pass, a data-gathering pass, six specialist
analyses and a final synthesis.

Examples:
  tickerlab analyze RELIANCE
  tickerlab analyze HDFCBANK vs ICICIBANK
  tickerlab analyze --deep TSLA --hypothesis "margins trough this quarter"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDeep, "deep", false, "Run the full multi-engine chain")
	analyzeCmd.Flags().StringVar(&analyzeHypothesis, "hypothesis", "", "A thesis the analysis must address")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "Skip saving the result to history")
	analyzeCmd.Flags().BoolVar(&plainOutput, "plain", false, "Plain line output instead of the live progress view")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	subject := strings.TrimSpace(strings.Join(args, " "))
	if subject == "" {
		return fmt.Errorf("subject is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := handleSignals(cancel)
	defer stop()

	client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.CallTimeout())
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	svc, err := openHistory(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())
	svc.Refresh(ctx)

	orch, cleanup := newOrchestrator(client, svc)
	defer cleanup()

	opts := pipeline.AnalyzeOptions{
		Deep:       analyzeDeep,
		Hypothesis: analyzeHypothesis,
		NoSave:     analyzeNoSave,
	}
	variant := ux.VariantFor(subject, analyzeDeep)
	res, err := runWorkflow(ctx, cancel, orch, workflowTitle(variant, subject), ux.StageOrder(variant),
		func(ctx context.Context) (*pipeline.RunResult, error) {
			return orch.Analyze(ctx, subject, opts)
		})
	if err != nil {
		return reportFatal(err)
	}
	printReport(res)
	return nil
}
