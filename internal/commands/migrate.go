package commands

import (
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/expense-importer/pkg/db"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}

			database, err := db.New(db.Config{
				DSN:      cfg.Database.DSN(),
				MaxConns: 2,
				MinConns: 1,
			}, log)
			if err != nil {
				return err
			}
			defer database.Close()

			return database.RunMigrations()
		},
	}
}
