package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the portal service.
type Config struct {
	// Database
	DBURL string

	// Datastore backend type: "postgres" or "sqlite".
	DatastoreType string

	// SQLitePath is the database file for the sqlite backend.
	// ":memory:" gives an ephemeral in-process database.
	SQLitePath string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Cache backend type: "memory", "redis", or "none".
	CacheType string

	// Redis
	RedisURL string

	// Time-to-live for cached thread and message responses.
	CacheTTL time.Duration

	// Missive API
	MissiveBaseURL  string
	MissiveAPIToken string

	// MissivePageLimit is the page size for offset-paginated listings
	// (shared labels). 200 is the API maximum.
	MissivePageLimit int

	// MessagePageLimit is the page size for the backward-paginated
	// per-conversation message listing.
	MessagePageLimit int

	// ClientMarker is the sentinel string that marks a message as safe
	// to show to an external client.
	ClientMarker string

	// LabelNamespace is the shared-label name prefix identifying the
	// client taxonomy; stripped to obtain the local client code.
	LabelNamespace string

	// LabelSyncInterval enables periodic label reconciliation when > 0.
	LabelSyncInterval time.Duration

	// Auth
	SessionSecret    string
	SessionMaxAge    time.Duration
	TokenExpiry      time.Duration
	TokenCleanupTick time.Duration

	// AdminToken authorizes the /v1/admin API when set. Empty disables
	// the admin routes entirely.
	AdminToken string

	// SMTP
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string

	// EmailFrom is the sender address for magic-link mail.
	EmailFrom string

	// AppURL is the externally reachable base URL used in magic links.
	AppURL string

	// Server
	Listener     ListenerConfig
	DrainTimeout int // seconds
	CORSEnabled  bool
	CORSOrigins  string

	// ManagementAccessLog enables HTTP access logging for management
	// endpoints (/health, /ready, /metrics). Disabled by default to
	// suppress high-frequency probe noise from the access log.
	ManagementAccessLog bool

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR}
	// expansion. Defaults to "service=portal-service".
	MetricsLabels string

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "sqlite",
		SQLitePath:              "data/portal.db",
		DatastoreMigrateAtStart: true,
		CacheType:               "memory",
		CacheTTL:                5 * time.Minute,
		MissiveBaseURL:          "https://public.missiveapp.com/v1",
		MissivePageLimit:        200,
		MessagePageLimit:        10,
		ClientMarker:            "[CLIENT]",
		LabelNamespace:          "Clients/",
		SessionMaxAge:           7 * 24 * time.Hour,
		TokenExpiry:             15 * time.Minute,
		TokenCleanupTick:        time.Hour,
		SMTPPort:                587,
		Listener: ListenerConfig{
			Port:              3000,
			ReadHeaderTimeout: 5 * time.Second,
		},
		DrainTimeout:   30,
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
	}
}

// NormalizedLabelNamespace returns the label namespace with exactly one
// trailing slash, so prefix matching and code derivation agree.
func (c *Config) NormalizedLabelNamespace() string {
	ns := strings.TrimRight(c.LabelNamespace, "/")
	if ns == "" {
		return "/"
	}
	return ns + "/"
}
