package cli

import (
	"olympiad/internal/app"
	"olympiad/internal/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return db.Migrate(cmd.Context(), cfg.Postgres.DSN)
		},
	}
}
