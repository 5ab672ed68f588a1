package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tickerlab/internal/gemini"
	"tickerlab/internal/pipeline"
	"tickerlab/internal/ux"
)

var updateFull bool

var updateCmd = &cobra.Command{
	Use:   "update SESSION_ID",
	Short: "Refresh a saved analysis with developments since it was written",
	Long: `Re-runs a saved analysis against what changed since it was last
written. A sentinel pass searches for developments after the previous
report's date, then the synthesizer folds them into a refreshed report
saved under the same session id.

By default the sentinel looks only at new developments. With --full the
whole picture is re-examined from scratch, using the previous report as a
baseline to diff against.

Updating requires the durable MongoDB history (mongo.uri and user.id).`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateFull, "full", false, "Re-examine everything, not just new developments")
	updateCmd.Flags().BoolVar(&plainOutput, "plain", false, "Plain line output instead of the live progress view")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := handleSignals(cancel)
	defer stop()

	svc, err := openHistory(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())
	svc.Refresh(ctx)

	prev, err := resolveSession(svc, args[0])
	if err != nil {
		return err
	}

	client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.CallTimeout())
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	orch, cleanup := newOrchestrator(client, svc)
	defer cleanup()

	mode := pipeline.UpdateIncremental
	if updateFull {
		mode = pipeline.UpdateFullRescan
	}
	res, err := runWorkflow(ctx, cancel, orch, workflowTitle(pipeline.VariantUpdate, prev.SubjectLabel), ux.StageOrder(pipeline.VariantUpdate),
		func(ctx context.Context) (*pipeline.RunResult, error) {
			return orch.Update(ctx, prev, mode)
		})
	if err != nil {
		return reportFatal(err)
	}
	printReport(res)
	return nil
}
