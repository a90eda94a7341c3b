// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/api"
	"github.com/starford/auralis/internal/auth"
	"github.com/starford/auralis/internal/configwatch"
	"github.com/starford/auralis/internal/insights"
	"github.com/starford/auralis/internal/notelist"
	"github.com/starford/auralis/internal/repository"
	"github.com/starford/auralis/internal/sse"
	pkgconfig "github.com/starford/auralis/pkg/config"
)

var errConfigRequired = errors.New("config is required")

// newLogger installs a structured JSON logger writing to out as the default
// and returns the level handle used for runtime changes.
func newLogger(out io.Writer, level slog.Level) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(level)
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lv}))
	slog.SetDefault(logger)
	return logger, lv
}

// newInsightsCache builds the configured category cache. The returned close
// function is never nil.
func newInsightsCache(cfg CacheConfig) (insights.Cache, func(), error) {
	if cfg.Mode == CacheModeRedis {
		c, err := insights.NewRedisCache(cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}
	return insights.NewMemoryCache(cfg.TTL), func() {}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, levelVar := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("cache_mode", cfg.Cache.Mode),
		slog.Bool("ai_configured", cfg.AI.APIKey != ""),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite repository.
	db, err := repository.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer db.Close()

	cache, closeCache, err := newInsightsCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init insights cache: %w", err)
	}
	defer closeCache()

	aiClient := ai.New(cfg.AI.Client())
	tracker := insights.NewTracker(insights.NewService(aiClient, cache, logger))

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.InsightsThrottle)

	registry := notelist.NewRegistry(db, aiClient,
		notelist.WithLogger(logger),
		notelist.WithListener(api.ObserveNoteEvent),
		notelist.WithListener(func(ev notelist.Event) {
			if ev.Kind != notelist.EventLoaded {
				broker.PublishNoteEvent(ev.Kind, ev.OwnerID, ev.Note.ID)
			}
		}),
	)

	// Build API handler and router.
	h := api.NewHandler(registry, tracker, aiClient, db)
	apiRouter := api.NewRouter(h, auth.Middleware(cfg.Auth.Mode, cfg.Auth.Secret, cfg.Auth.DefaultOwner), broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the log level when the config file changes.
	if app.configPath != "" {
		g.Go(func() error {
			err := configwatch.Watch(gCtx, app.configPath, configwatch.DefaultDebounce, logger, func() {
				reloadLogLevel(app.configPath, levelVar, logger)
			})
			if err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Closing the broker ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the config watcher stops too.
var errShutdown = errors.New("shutdown")

func reloadLogLevel(path string, levelVar *slog.LevelVar, logger *slog.Logger) {
	fresh := NewDefaultConfig()
	if err := pkgconfig.Load(path, fresh); err != nil {
		logger.Warn("config reload failed, keeping current settings", slog.String("error", err.Error()))
		return
	}
	if old := levelVar.Level(); old != fresh.App.LogLevel {
		levelVar.Set(fresh.App.LogLevel)
		logger.Info("log level changed",
			slog.String("from", old.String()),
			slog.String("to", fresh.App.LogLevel.String()))
	}
}
