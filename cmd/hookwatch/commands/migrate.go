package commands

import (
	"github.com/spf13/cobra"

	"github.com/hookwatch/hookwatch/db"
	"github.com/hookwatch/hookwatch/logger"
)

// NewMigrateCmd builds the migrate subcommand: apply pending migrations
// and exit.
func NewMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Logger

			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}

			database, err := db.Open(cfg.Database.Path, log)
			if err != nil {
				return err
			}
			defer database.Close()

			return db.Migrate(database, log)
		},
	}
}
