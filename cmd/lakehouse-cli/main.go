// Package main provides the lakehouse agent CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/app"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/config"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lakehouse-cli",
	Short: "Run the lakehouse pipeline and ask questions of the gold layer",
	Long: `lakehouse-cli drives the lakehouse agent from a terminal.

Use this tool to:
- Run the full pipeline (extract, transform, catalog)
- Refine bronze sources into silver without the rest of the pipeline
- Ask natural-language questions answered from the gold layer
- Inspect past runs and the few-shot example corpus

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		} else if level == "" || level == "info" {
			level = "warn"
		}
		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			Output:      os.Stderr,
			ServiceName: "lakehouse-cli",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newRefineCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newLineageCmd())
	rootCmd.AddCommand(newPurgeCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
