package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tickerlab/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration and preferences",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a preference",
	Long: `Stores a key/value preference in the history backend: in MongoDB
scoped to your user id when configured, in the local history file
otherwise. Preferences ride along with your sessions; model and pipeline
settings live in the YAML config file instead (see config init).`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists, pass --force to overwrite", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set GEMINI_API_KEY (or gemini.api_key) before running an analysis.")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	if shown.Gemini.APIKey != "" {
		shown.Gemini.APIKey = "(set)"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Print(string(data))

	ctx := context.Background()
	svc, err := openHistory(ctx, false)
	if err != nil {
		return nil // config itself printed; preferences are best-effort
	}
	defer svc.Close(context.Background())
	prefs := svc.Preferences(ctx)
	if len(prefs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("\npreferences:")
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, prefs[k])
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if key == "" {
		return fmt.Errorf("preference key must not be empty")
	}

	ctx := context.Background()
	svc, err := openHistory(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	if err := svc.SetPreference(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store preference: %w", err)
	}
	scope := "local"
	if svc.Durable() {
		scope = "durable"
	}
	fmt.Printf("Set %s (%s)\n", key, scope)
	return nil
}
