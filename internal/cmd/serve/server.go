package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	"github.com/chirino/portal-service/internal/missive"
	routeadmin "github.com/chirino/portal-service/internal/plugin/route/admin"
	routeauth "github.com/chirino/portal-service/internal/plugin/route/auth"
	routesystem "github.com/chirino/portal-service/internal/plugin/route/system"
	routethreads "github.com/chirino/portal-service/internal/plugin/route/threads"
	storemetrics "github.com/chirino/portal-service/internal/plugin/store/metrics"
	registrycache "github.com/chirino/portal-service/internal/registry/cache"
	registrymigrate "github.com/chirino/portal-service/internal/registry/migrate"
	registryroute "github.com/chirino/portal-service/internal/registry/route"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
	"github.com/chirino/portal-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.PortalStore
	Router     *gin.Engine
	Port       int
	httpServer *http.Server
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for an OS-assigned port; the actual port is in
// Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting portal service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if cfg.DatastoreMigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	// Initialize the response cache. A cache failure is not fatal: the
	// portal still works, every read just goes to Missive.
	var responseCache registrycache.ResponseCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if c, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else if c.Available() {
		responseCache = c
		ctx = registrycache.WithContext(ctx, c)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount route plugins that need no initialized subsystems.
	for _, loader := range registryroute.Loaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Wire the Missive-facing services.
	client := missive.NewClient(cfg)
	threadSvc := service.NewThreadService(store, responseCache, client, cfg.CacheTTL, cfg.ClientMarker)
	syncSvc := service.NewSyncService(store, client, cfg.NormalizedLabelNamespace(), cfg.LabelSyncInterval)
	authSvc := service.NewAuthService(store, service.NewSMTPMailer(cfg), cfg.AppURL, cfg.TokenExpiry)
	sessions := security.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge)
	sessionAuth := security.SessionMiddleware(sessions)

	// Mount client-facing routes.
	routeauth.MountRoutes(router, authSvc, store, sessions)
	routethreads.MountRoutes(router, threadSvc, store, sessionAuth)

	// Mount operator routes. With no admin token configured the group
	// responds 404 across the board.
	routeadmin.MountRoutes(router, store, syncSvc, threadSvc, security.RequireAdminToken(cfg.AdminToken))

	// Start background services
	syncSvc.SyncIfEmpty(ctx)
	go syncSvc.Start(ctx)

	cleanup := service.NewTokenCleanupService(store, cfg.TokenCleanupTick)
	go cleanup.Start(ctx)

	// Start the HTTP listener.
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("listen failed: %w", err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	port := lis.Addr().(*net.TCPAddr).Port
	log.Info("Server listening", "port", port)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Port:       port,
		httpServer: httpServer,
	}, nil
}
