// Package commands defines the importer CLI.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/expense-importer/pkg/config"
	"github.com/FACorreiaa/expense-importer/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "importer",
		Short:   "CSV expense import service",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override LOG_FORMAT (text, json)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newExpireCommand(opts),
	)

	return rootCmd
}

// setup loads configuration and builds the process logger.
func (o *rootOptions) setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Observability.LogFormat = o.logFormat
	}

	log := logger.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	slog.SetDefault(log)
	return cfg, log, nil
}
