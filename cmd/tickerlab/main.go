// tickerlab is a multi-engine equity research CLI. It drives fixed
// Gemini workflows (quick, deep, head-to-head comparison, update) over a
// catalog of analyst engines and keeps the resulting reports in a local
// or per-user durable history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tickerlab/internal/config"
	"tickerlab/internal/logging"
)

const version = "0.1.0"

var (
	// Global flags
	verbose   bool
	cfgPath   string
	localOnly bool

	// Loaded in PersistentPreRunE, shared by every command.
	cfg *config.Config

	// Host logger. Nil for TUI commands, which own the terminal; the
	// categorized file logger stays active either way.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:     "tickerlab",
	Version: version,
	Short:   "Multi-engine equity research on the command line",
	Long: `tickerlab runs structured equity research workflows against the
Gemini API and keeps the resulting reports.

Workflows:
  quick       one comprehensive web-grounded analysis (default)
  comparison  "A vs B" subjects get two analyses plus a head-to-head verdict
  deep        planner, librarian, six specialists and a synthesizer (--deep)
  update      refresh a saved report with developments since it was written

Reports land in a local history file, or in MongoDB scoped to your user id
when mongo.uri and user.id are configured.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}
		if err := logging.Configure(cfg.ResolvedDataDir(), cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}

		// The progress UI renders inline; keep zap off its terminal.
		if isWorkflowCmd(cmd) && !plainOutput && isTTY() {
			return nil
		}
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func isWorkflowCmd(cmd *cobra.Command) bool {
	return cmd.Name() == "analyze" || cmd.Name() == "update"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.tickerlab/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&localOnly, "local", false, "Use the local history file even when MongoDB is configured")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
