package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/digitaltwin/internal/chat"
	"github.com/fyrsmithlabs/digitaltwin/internal/classification"
	"github.com/fyrsmithlabs/digitaltwin/internal/config"
	apihttp "github.com/fyrsmithlabs/digitaltwin/internal/http"
	"github.com/fyrsmithlabs/digitaltwin/internal/items"
	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	"github.com/fyrsmithlabs/digitaltwin/internal/telemetry"
	"github.com/fyrsmithlabs/digitaltwin/internal/users"
	"github.com/fyrsmithlabs/digitaltwin/pkg/auth"
)

const instrumentationName = "github.com/fyrsmithlabs/digitaltwin"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the API server. The schema is created on startup, so a fresh
database needs no separate migrate step.

SIGINT and SIGTERM trigger a graceful shutdown bounded by
server.shutdown_timeout.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}
	return run(ctx, cfg)
}

// run starts the server and blocks until ctx is cancelled.
//
// Startup order:
//  1. Telemetry, so the logger can bridge into it
//  2. Logger
//  3. Store and schema
//  4. Classifier, services and HTTP server
func run(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	lc, err := loggingConfig(cfg)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(lc, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Errors("failures", tel.Failures()))
	}

	logger.Info(ctx, "starting digitaltwin",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("environment", cfg.Server.Environment),
		zap.String("classifier", cfg.Classifier.Provider),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	srv, cleanup, err := newServer(ctx, cfg, tel, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	logger.Info(shutdownCtx, "shutdown complete")
	return errors.Join(errs...)
}

// newServer opens the store and wires every service into an HTTP server.
// cleanup closes the store.
func newServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, logger *logging.Logger) (*apihttp.Server, func(), error) {
	db, err := store.Open(ctx, cfg.Database.URL, store.Options{MaxOpenConns: cfg.Database.MaxOpenConns})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = db.Close() }

	fail := func(err error) (*apihttp.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		return fail(err)
	}

	gen, err := classification.NewGenerator(ctx, cfg.Classifier)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize classifier: %w", err))
	}
	metrics, err := classification.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fail(err)
	}
	engine := classification.NewEngine(gen,
		classification.WithLogger(logger.Named("classification").With(zap.String("provider", cfg.Classifier.Provider))),
		classification.WithMetrics(metrics),
		classification.WithTracer(tel.Tracer(instrumentationName+"/internal/classification")),
		classification.WithTimeout(cfg.Classifier.Timeout.Duration()),
	)

	tokens, err := auth.NewIssuer(cfg.Auth.SecretKey.Value(), cfg.Auth.TokenTTL.Duration())
	if err != nil {
		return fail(err)
	}

	srv, err := apihttp.NewServer(apihttp.Deps{
		Users:   users.NewService(db),
		Items:   items.NewService(db),
		Chat:    chat.NewService(db, engine, logger.Named("chat")),
		Tokens:  tokens,
		Health:  db,
		Metrics: apihttp.NewHTTPMetrics(tel.Meter(instrumentationName+"/internal/http"), logger),
	}, logger.Named("http"), &apihttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Version:        version,
	})
	if err != nil {
		return fail(err)
	}
	return srv, cleanup, nil
}
