package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	registrymigrate "github.com/chirino/portal-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/chirino/portal-service/internal/plugin/store/gormstore"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("PORTAL_SERVICE_DB_KIND"),
				Usage:   "Store backend (postgres|sqlite)",
				Value:   "sqlite",
			},
			&cli.StringFlag{
				Name:    "db-url",
				Sources: cli.EnvVars("PORTAL_SERVICE_DB_URL", "DATABASE_URL"),
				Usage:   "Database connection URL (postgres backend)",
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				Sources: cli.EnvVars("PORTAL_SERVICE_SQLITE_PATH"),
				Usage:   "Database file for the sqlite backend",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.DBURL = cmd.String("db-url")
			if path := cmd.String("sqlite-path"); path != "" {
				cfg.SQLitePath = path
			}
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
