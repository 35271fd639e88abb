package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lvalente/filmtrack-go/internal/config"
	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/handler"
	"github.com/lvalente/filmtrack-go/internal/infra/cache"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/infra/resilience"
	"github.com/lvalente/filmtrack-go/internal/infra/supabase"
	"github.com/lvalente/filmtrack-go/internal/state"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("profile_cache_ttl", cfg.ProfileCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		logger.Fatal("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "filmtrack")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	profileCache := cache.New[*domain.User](cfg.ProfileCacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		Retries:     cfg.MaxRetries,
		BaseDelay:   cfg.InitialBackoff,
		MaxInFlight: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Remote boundary ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cb,
		resilienceCfg,
		logger,
		metrics,
	)
	defer supabaseClient.Close()

	// --- State managers ---
	sessions := state.NewSessionManager(supabaseClient, supabaseClient, profileCache, logger, metrics)
	if err := sessions.Initialize(context.Background()); err != nil {
		logger.Fatal("session manager init failed", zap.Error(err))
	}
	defer sessions.Close()

	catalog := state.NewCatalog(supabaseClient, supabaseClient, logger, metrics)

	// Best-effort warm-up: a failed fetch leaves the mirrors empty, the
	// first request repeats it.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	var g errgroup.Group
	g.Go(func() error { return catalog.FetchFilms(warmCtx) })
	g.Go(func() error { return catalog.FetchDistributions(warmCtx) })
	if err := g.Wait(); err != nil {
		logger.Warn("catalog warm-up incomplete", zap.Error(err))
	}
	warmCancel()

	// --- Router ---
	router := handler.NewRouter(sessions, catalog, metrics, cfg.AllowedOrigins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
