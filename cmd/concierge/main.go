package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/comigor/concierge-go/internal/api"
	"github.com/comigor/concierge-go/internal/config"
	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/llm"
	"github.com/comigor/concierge-go/internal/logger"
	"github.com/comigor/concierge-go/internal/paramstore"
	"github.com/comigor/concierge-go/internal/prompt"
	"github.com/comigor/concierge-go/internal/relay"
	"github.com/comigor/concierge-go/internal/store/postgres"
	"github.com/comigor/concierge-go/internal/store/sqlite"
	"github.com/comigor/concierge-go/internal/survey"
)

// store is what every storage backend provides.
type store interface {
	history.Store
	survey.Store
	Close() error
}

func main() {
	if err := run(); err != nil {
		logger.L.Error("concierge stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Prompt.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		overlaid, err := cfg.WithParameters(ctx, paramstore.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
		cfg = &overlaid
		logger.L.Info("applied parameter store overrides", "prefix", cfg.Prompt.ParamPrefix)
	}

	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := llm.New(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.L.Warn("OPENAI_API_KEY is not set, chat replies will be diagnostic only")
		provider = nil
	case err != nil:
		return fmt.Errorf("init provider: %w", err)
	default:
		logger.L.Info("provider ready", "api", cfg.LLM.API, "model", cfg.LLM.Model)
	}

	chatRelay := relay.New(db, provider, relay.Settings{
		Model:           cfg.LLM.Model,
		HistoryWindow:   cfg.Chat.HistoryWindow,
		ProviderTimeout: cfg.LLM.Timeout,
		Context:         prompt.NewContext(cfg.Prompt.System, cfg.Prompt.ReferenceDocument),
	})
	surveys, err := survey.NewService(db)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Assets.LocalDir, 0o755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}

	router := api.NewRouter(api.Dependencies{
		Relay:   chatRelay,
		Surveys: surveys,
		Assets:  cfg.Assets,
		CORS:    cfg.CORS,
	})

	// No WriteTimeout: chat streams last as long as the provider takes.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.L.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.L.Info("server shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	driver, dsn := cfg.Backend()
	switch driver {
	case config.BackendPostgres:
		s, err := postgres.Open(openCtx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.Open(openCtx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	}
}
