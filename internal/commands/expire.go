package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/expense-importer/cmd/api"
)

func newExpireCommand(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Cancel import sessions idle for longer than the TTL and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Import.SessionTTL
			}

			deps, err := api.InitDependencies(cfg, log)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			n, err := deps.ImportService.ExpireStaleSessions(cmd.Context(), ttl)
			if err != nil {
				return err
			}
			log.Info("expired import sessions", slog.Int64("count", n), slog.Duration("ttl", ttl))
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "idle time before a session expires (default IMPORT_SESSION_TTL)")

	return cmd
}
