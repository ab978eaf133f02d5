package serve

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	registrycache "github.com/chirino/portal-service/internal/registry/cache"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/portal-service/internal/plugin/cache/memory"
	_ "github.com/chirino/portal-service/internal/plugin/cache/noop"
	_ "github.com/chirino/portal-service/internal/plugin/cache/redis"
	_ "github.com/chirino/portal-service/internal/plugin/route/admin"
	_ "github.com/chirino/portal-service/internal/plugin/route/auth"
	_ "github.com/chirino/portal-service/internal/plugin/route/system"
	_ "github.com/chirino/portal-service/internal/plugin/route/threads"
	_ "github.com/chirino/portal-service/internal/plugin/store/gormstore"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the portal HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_PORT", "PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "app-url",
			Category:    "Server:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_APP_URL"),
			Destination: &cfg.AppURL,
			Usage:       "Externally reachable base URL, used in magic-link mail",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins (empty = any)",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_DB_URL", "DATABASE_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (postgres backend)",
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Category:    "Database:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SQLITE_PATH"),
			Destination: &cfg.SQLitePath,
			Value:       cfg.SQLitePath,
			Usage:       "Database file for the sqlite backend (\":memory:\" for ephemeral)",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run database migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_REDIS_URL", "REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "Time-to-live for cached thread and message responses",
		},

		// ── Missive ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "missive-url",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_MISSIVE_URL"),
			Destination: &cfg.MissiveBaseURL,
			Value:       cfg.MissiveBaseURL,
			Usage:       "Missive API base URL",
		},
		&cli.StringFlag{
			Name:        "missive-token",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_MISSIVE_TOKEN", "MISSIVE_API_TOKEN"),
			Destination: &cfg.MissiveAPIToken,
			Usage:       "Missive API token",
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "missive-page-limit",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_MISSIVE_PAGE_LIMIT"),
			Destination: &cfg.MissivePageLimit,
			Value:       cfg.MissivePageLimit,
			Usage:       "Page size for shared-label listing (API maximum 200)",
		},
		&cli.IntFlag{
			Name:        "message-page-limit",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_MESSAGE_PAGE_LIMIT"),
			Destination: &cfg.MessagePageLimit,
			Value:       cfg.MessagePageLimit,
			Usage:       "Page size for per-conversation message listing",
		},
		&cli.StringFlag{
			Name:        "client-marker",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_CLIENT_MARKER"),
			Destination: &cfg.ClientMarker,
			Value:       cfg.ClientMarker,
			Usage:       "Marker string identifying client-visible messages",
		},
		&cli.StringFlag{
			Name:        "label-namespace",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_LABEL_NAMESPACE"),
			Destination: &cfg.LabelNamespace,
			Value:       cfg.LabelNamespace,
			Usage:       "Shared-label name prefix identifying the client taxonomy",
		},
		&cli.DurationFlag{
			Name:        "label-sync-interval",
			Category:    "Missive:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_LABEL_SYNC_INTERVAL"),
			Destination: &cfg.LabelSyncInterval,
			Usage:       "Periodic label reconciliation interval (0 = disabled)",
		},

		// ── Auth ──────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "session-secret",
			Category:    "Auth:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SESSION_SECRET", "SESSION_SECRET"),
			Destination: &cfg.SessionSecret,
			Usage:       "Secret used to sign session cookies",
			Required:    true,
		},
		&cli.DurationFlag{
			Name:        "session-max-age",
			Category:    "Auth:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SESSION_MAX_AGE"),
			Destination: &cfg.SessionMaxAge,
			Value:       cfg.SessionMaxAge,
			Usage:       "Session cookie lifetime",
		},
		&cli.DurationFlag{
			Name:        "token-expiry",
			Category:    "Auth:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_TOKEN_EXPIRY"),
			Destination: &cfg.TokenExpiry,
			Value:       cfg.TokenExpiry,
			Usage:       "Magic-link token lifetime",
		},
		&cli.DurationFlag{
			Name:        "token-cleanup-tick",
			Category:    "Auth:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_TOKEN_CLEANUP_TICK"),
			Destination: &cfg.TokenCleanupTick,
			Value:       cfg.TokenCleanupTick,
			Usage:       "Interval between expired-token sweeps",
		},
		&cli.StringFlag{
			Name:        "admin-token",
			Category:    "Auth:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_ADMIN_TOKEN"),
			Destination: &cfg.AdminToken,
			Usage:       "Bearer token for the /v1/admin API (empty = admin routes disabled)",
		},

		// ── Mail ──────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "smtp-host",
			Category:    "Mail:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SMTP_HOST", "SMTP_HOST"),
			Destination: &cfg.SMTPHost,
			Usage:       "SMTP server host",
		},
		&cli.IntFlag{
			Name:        "smtp-port",
			Category:    "Mail:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SMTP_PORT", "SMTP_PORT"),
			Destination: &cfg.SMTPPort,
			Value:       cfg.SMTPPort,
			Usage:       "SMTP server port",
		},
		&cli.StringFlag{
			Name:        "smtp-user",
			Category:    "Mail:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SMTP_USER", "SMTP_USER"),
			Destination: &cfg.SMTPUser,
			Usage:       "SMTP username",
		},
		&cli.StringFlag{
			Name:        "smtp-pass",
			Category:    "Mail:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_SMTP_PASS", "SMTP_PASS"),
			Destination: &cfg.SMTPPass,
			Usage:       "SMTP password",
		},
		&cli.StringFlag{
			Name:        "email-from",
			Category:    "Mail:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_EMAIL_FROM", "EMAIL_FROM"),
			Destination: &cfg.EmailFrom,
			Usage:       "Sender address for magic-link mail",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("PORTAL_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=portal-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
