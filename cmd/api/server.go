package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/septivank/energy-measurements-api/internal/api"
	"github.com/septivank/energy-measurements-api/internal/config"
	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/septivank/energy-measurements-api/internal/importer"
	"github.com/septivank/energy-measurements-api/internal/mq"
	"github.com/septivank/energy-measurements-api/internal/query"
	"github.com/septivank/energy-measurements-api/internal/repository"
	"github.com/septivank/energy-measurements-api/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	handler *api.Handler,
	logger *zap.Logger,
) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServicePort),
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting http server", zap.Int("port", cfg.ServicePort))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return server.Shutdown(ctx)
		},
	})
}

// ProvideDBPool creates the database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates the repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideValidator creates the raw-record validator
func ProvideValidator() *validator.Validator {
	return validator.NewValidator(db.RegisterCodes)
}

// ProvideFetcher creates the dump fetcher
func ProvideFetcher(cfg *config.Config) *importer.Fetcher {
	return importer.NewFetcher(
		time.Duration(cfg.Import.FetchTimeoutSeconds)*time.Second,
		cfg.Import.FetchMaxRetries,
	)
}

// ProvideImportPublisher wires the RabbitMQ publisher, or a no-op publisher
// when no broker is configured.
func ProvideImportPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (mq.ImportPublisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, import events disabled")
		return mq.NoopPublisher{}, nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideImporter creates the bulk-import service
func ProvideImporter(
	repo *repository.Repository,
	fetcher *importer.Fetcher,
	v *validator.Validator,
	publisher mq.ImportPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *importer.Service {
	return importer.NewService(repo, fetcher, v, publisher, cfg.Import.SourceURLs, logger)
}

// ProvideQueryService creates the query orchestrator
func ProvideQueryService(repo *repository.Repository, logger *zap.Logger) *query.Service {
	return query.NewService(repo, logger)
}

// ProvideHandler creates the HTTP handler set
func ProvideHandler(
	queries *query.Service,
	imp *importer.Service,
	pool *db.Pool,
	cfg *config.Config,
) *api.Handler {
	return api.NewHandler(queries, imp, pool, cfg.Query)
}
