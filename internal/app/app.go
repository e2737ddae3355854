package app

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "tarottracker/libs/db"
	libredis "tarottracker/libs/redis"

	"tarottracker/internal/cache"
	"tarottracker/internal/config"
	"tarottracker/internal/export"
	httpserver "tarottracker/internal/http"
	"tarottracker/internal/http/handlers"
	"tarottracker/internal/http/middleware"
	"tarottracker/internal/notify"
	"tarottracker/internal/repository"
	"tarottracker/internal/settings"
	"tarottracker/internal/tools"
)

// App wires tracker dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	notifier    *notify.Notifier
	exporter    *export.Exporter
	interval    time.Duration
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	sessionRepo := repository.NewSessionRepository(sqlDB)
	blobStore := cache.NewStore(redisClient, cfg.Cache.Namespace)
	settingsStore := settings.NewStore(context.Background(), blobStore, logger)

	dispatcher := tools.NewDispatcher(sessionRepo, logger)
	notifier := notify.New(sessionRepo, blobStore, settingsStore, &notify.LogSink{Logger: logger}, logger)
	exporter := export.NewExporter(sessionRepo)

	routes := httpserver.Routes{
		MCP:       handlers.NewMCPHandler(dispatcher, logger),
		ToolCall:  handlers.NewToolCallHandler(dispatcher, logger),
		Users:     handlers.NewUsersHandler(sessionRepo, logger),
		Sessions:  handlers.NewSessionsHandler(sessionRepo, logger),
		ExportCSV: handlers.NewExportHandler(exporter, logger),
		Health:    handlers.NewHealthHandler(),
		StaticDir: cfg.Static.Dir,
	}
	if cfg.Auth.Secret != "" {
		routes.Auth = middleware.AuthMiddleware(cfg.Auth.Secret)
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		notifier:    notifier,
		exporter:    exporter,
		interval:    cfg.Notifier.Interval,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the periodic notification check. The check
// ticks more often than daily; the notifier's own day stamp keeps it to one
// battery run per calendar day.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.server.Run(ctx)
	})
	group.Go(func() error {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		if err := a.notifier.Run(ctx); err != nil {
			a.logger.Warn("notification check failed", zap.Error(err))
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.notifier.Run(ctx); err != nil {
					a.logger.Warn("notification check failed", zap.Error(err))
				}
			}
		}
	})

	return group.Wait()
}

// Notify runs the heuristics battery once.
func (a *App) Notify(ctx context.Context) error {
	return a.notifier.Run(ctx)
}

// Export writes a user's session history as CSV.
func (a *App) Export(ctx context.Context, user string, w io.Writer) error {
	return a.exporter.WriteCSV(ctx, user, w)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
