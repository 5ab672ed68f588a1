package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tickerlab/internal/usage"
)

var usageDays int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token spend grouped by model",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 30, "How many days back to summarize")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ledger, err := usage.NewLedger(cfg.ResolvedDataDir())
	if err != nil {
		return fmt.Errorf("failed to open usage ledger: %w", err)
	}
	defer ledger.Close()

	since := time.Now().AddDate(0, 0, -usageDays)
	rows, err := ledger.Summary(context.Background(), since)
	if err != nil {
		return fmt.Errorf("failed to summarize usage: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("No model calls recorded in the last %d days.\n", usageDays)
		return nil
	}

	fmt.Printf("%-28s %7s %12s %12s %12s\n", "MODEL", "CALLS", "PROMPT", "COMPLETION", "TOTAL")
	var totals usage.ModelTotals
	for _, r := range rows {
		fmt.Printf("%-28s %7d %12d %12d %12d\n", r.ModelID, r.Calls, r.PromptTokens, r.CompletionTokens, r.TotalTokens)
		totals.Calls += r.Calls
		totals.PromptTokens += r.PromptTokens
		totals.CompletionTokens += r.CompletionTokens
		totals.TotalTokens += r.TotalTokens
	}
	fmt.Printf("%-28s %7d %12d %12d %12d\n", "all models", totals.Calls, totals.PromptTokens, totals.CompletionTokens, totals.TotalTokens)
	return nil
}
