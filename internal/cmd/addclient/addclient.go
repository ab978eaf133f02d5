package addclient

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	registrymigrate "github.com/chirino/portal-service/internal/registry/migrate"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/urfave/cli/v3"

	_ "github.com/chirino/portal-service/internal/plugin/store/gormstore"
)

// Command returns the add-client sub-command: allow an email address to
// log in for a client code.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "add-client",
		Usage:     "Allow an email address to log in for a client code",
		ArgsUsage: "<email> <client-code> [name]",
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
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() < 2 {
				return fmt.Errorf("usage: add-client <email> <client-code> [name]")
			}
			email, code := args.Get(0), args.Get(1)
			name := args.Get(2)

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

			client, err := store.AddAllowedClient(ctx, email, name, code)
			if err != nil {
				return err
			}
			log.Info("Client allowed", "email", client.Email, "code", code)
			return nil
		},
	}
}
