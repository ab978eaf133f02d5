package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/cmd/addclient"
	"github.com/chirino/portal-service/internal/cmd/migrate"
	"github.com/chirino/portal-service/internal/cmd/serve"
	"github.com/chirino/portal-service/internal/cmd/synclabels"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "portal-service",
		Usage: "Client support portal backed by the Missive API",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			synclabels.Command(),
			addclient.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
