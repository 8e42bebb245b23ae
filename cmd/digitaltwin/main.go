// Package main implements the digitaltwin server and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/digitaltwin/internal/config"
	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath overrides the default config file location.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "digitaltwin",
		Short: "Personal digital twin assistant API",
		Long: `digitaltwin turns free-form brain dumps into structured tasks, ideas and
thoughts, and serves them over a JSON API.

Running without a subcommand starts the server.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.config/digitaltwin/config.yaml)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "digitaltwin by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// loggingConfig derives the logger configuration from the observability
// settings.
func loggingConfig(cfg *config.Config) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()

	level, err := logging.LevelFromString(cfg.Observability.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Observability.LogLevel, err)
	}
	lc.Level = level
	lc.Format = cfg.Observability.LogFormat
	lc.Output.OTEL = cfg.Observability.EnableTelemetry
	lc.Fields["service"] = cfg.Observability.ServiceName
	lc.Fields["environment"] = cfg.Server.Environment
	lc.Fields["version"] = version

	// Development runs keep every line.
	if !cfg.IsProduction() {
		lc.Sampling.Enabled = false
	}
	return lc, nil
}
