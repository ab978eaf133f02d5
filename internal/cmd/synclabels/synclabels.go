package synclabels

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	"github.com/chirino/portal-service/internal/missive"
	registrymigrate "github.com/chirino/portal-service/internal/registry/migrate"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/service"
	"github.com/urfave/cli/v3"

	_ "github.com/chirino/portal-service/internal/plugin/store/gormstore"
)

// Command returns the sync-labels sub-command: a one-shot label
// reconciliation for operators and cron jobs.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "sync-labels",
		Usage: "Reconcile the client label directory with Missive shared labels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-kind",
				Sources:     cli.EnvVars("PORTAL_SERVICE_DB_KIND"),
				Destination: &cfg.DatastoreType,
				Value:       cfg.DatastoreType,
				Usage:       "Store backend (postgres|sqlite)",
			},
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("PORTAL_SERVICE_DB_URL", "DATABASE_URL"),
				Destination: &cfg.DBURL,
				Usage:       "Database connection URL (postgres backend)",
			},
			&cli.StringFlag{
				Name:        "sqlite-path",
				Sources:     cli.EnvVars("PORTAL_SERVICE_SQLITE_PATH"),
				Destination: &cfg.SQLitePath,
				Value:       cfg.SQLitePath,
				Usage:       "Database file for the sqlite backend",
			},
			&cli.StringFlag{
				Name:        "missive-url",
				Sources:     cli.EnvVars("PORTAL_SERVICE_MISSIVE_URL"),
				Destination: &cfg.MissiveBaseURL,
				Value:       cfg.MissiveBaseURL,
				Usage:       "Missive API base URL",
			},
			&cli.StringFlag{
				Name:        "missive-token",
				Sources:     cli.EnvVars("PORTAL_SERVICE_MISSIVE_TOKEN", "MISSIVE_API_TOKEN"),
				Destination: &cfg.MissiveAPIToken,
				Usage:       "Missive API token",
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "label-namespace",
				Sources:     cli.EnvVars("PORTAL_SERVICE_LABEL_NAMESPACE"),
				Destination: &cfg.LabelNamespace,
				Value:       cfg.LabelNamespace,
				Usage:       "Shared-label name prefix identifying the client taxonomy",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = config.WithContext(ctx, &cfg)

			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			loader, err := registrystore.Select(cfg.DatastoreType)
			if err != nil {
				return err
			}
			store, err := loader(ctx)
			if err != nil {
				return err
			}

			svc := service.NewSyncService(store, missive.NewClient(&cfg), cfg.NormalizedLabelNamespace(), 0)
			stats, err := svc.Sync(ctx)
			if err != nil {
				return err
			}
			log.Info("Sync finished",
				"inserted", stats.Inserted,
				"updated", stats.Updated,
				"reactivated", stats.Reactivated,
				"deactivated", stats.Deactivated,
				"total", stats.Total,
			)
			return nil
		},
	}
}
