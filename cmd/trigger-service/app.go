package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"promopush/internal/broker"
	"promopush/internal/catalog"
	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/decoder"
	"promopush/internal/deduplication"
	"promopush/internal/dispatcher"
	"promopush/internal/enrichment"
	"promopush/internal/filtering"
	"promopush/internal/ledger"
	"promopush/internal/logger"
	"promopush/internal/ops"
	"promopush/internal/pipeline"
	"promopush/internal/sink/publisher"
	"promopush/internal/sink/store"
	"promopush/pkg/bootstrap"
	"promopush/pkg/health"
	"promopush/pkg/logging"
	"promopush/pkg/metrics"
	"promopush/pkg/migrations"
	"promopush/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	catalog        *catalog.Service
	dedup          *deduplication.Engine
	ledger         ledger.Ledger
	runner         *pipeline.Runner
	tracerProvider *tracing.TracerProvider
	server         *ops.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	metrics.RegisterHTTPMetrics()

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.Up(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.InfowCtx(ctx, "Migrations applied")
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

// initPipeline wires the stages. The first catalog load must succeed; there is no useful
// output without subscribers.
func (a *App) initPipeline(ctx context.Context) error {
	cfg := a.Config

	a.catalog = catalog.NewService(catalog.NewRepository(a.db, cfg.Catalog.Table), cfg.Catalog, a.Logger)
	if err := a.catalog.Load(ctx); err != nil {
		return err
	}

	filter, err := filtering.NewService(cfg.Filtering, time.Now, a.Logger)
	if err != nil {
		return err
	}

	a.dedup = deduplication.NewEngine(cfg.Deduplication, a.Logger)
	a.ledger = ledger.New(a.redis, cfg.Ledger, cfg.CircuitBreaker, a.Logger)

	sinks := []dispatcher.Sink{
		store.NewWriter(a.db, cfg.Feedback.Table, cfg.CircuitBreaker, a.Logger),
		publisher.NewPublisher(a.Producer, cfg.Broker.Kafka.OutputTopic, cfg.CircuitBreaker, a.Logger),
	}
	disp := dispatcher.New(cfg.Dispatcher, sinks, a.ledger, time.Now, a.Logger)

	a.runner = pipeline.NewRunner(
		a.Consumer,
		decoder.New(cfg.Pipeline.Workers),
		filter,
		a.catalog,
		enrichment.NewService(cfg.Pipeline.Workers, a.Logger),
		a.dedup,
		disp,
		pipeline.Options{
			MaxRecords:    cfg.Pipeline.MaxRecords,
			PollWait:      cfg.Pipeline.PollWait,
			CommitTimeout: commitTimeout(cfg.Dispatcher),
		},
		a.Logger,
	)
	return nil
}

// commitTimeout covers a full retry cycle of the dispatcher plus the offset commit.
func commitTimeout(cfg config.DispatcherConfig) time.Duration {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DispatchTimeout
	}
	if cfg.Retry.MaxElapsedTime > 0 {
		return cfg.Retry.MaxElapsedTime + timeout + constants.ShutdownTimeout
	}
	attempts := cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*(timeout+cfg.Retry.MaxInterval) + constants.ShutdownTimeout
}

func (a *App) initHTTPServer(ctx context.Context) error {
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewPostgreSQLChecker(a.db))

	dialer, err := broker.NewDialer(a.Config.Broker.Kafka)
	if err != nil {
		return err
	}
	registry.Register(health.NewKafkaChecker(dialer, a.Config.Broker.Kafka.Brokers))

	if a.redis != nil {
		registry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	registry.Register(health.NewFuncChecker("catalog", func(context.Context) error {
		if a.catalog.Current() == nil {
			return errors.New("catalog not loaded")
		}
		return nil
	}))

	notifier := catalog.NewNotifier(a.Producer, a.Config.Broker.Kafka.CatalogRefreshTopic)
	handler := ops.NewHandler(a.catalog, a.dedup, a.ledger, registry, a.Logger).WithBroadcaster(notifier)
	router := ops.NewRouter(ctx, a.Config, handler, a.Logger)
	a.server = ops.NewServer(a.Config.Server, router, a.Logger)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gCtx)
	})

	g.Go(func() error {
		return a.catalog.StartRefresher(gCtx)
	})

	if a.Subscriber != nil {
		topic := a.Config.Broker.Kafka.CatalogRefreshTopic
		handler := catalog.NewHandler(a.catalog, a.Logger)
		g.Go(func() error {
			subCtx := logging.WithServiceName(gCtx, constants.ServiceName)
			err := a.Subscriber.Subscribe(subCtx, topic, handler.HandleControlEvent)
			if err != nil && gCtx.Err() == nil {
				return fmt.Errorf("control topic subscriber: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.runner.Run(gCtx)
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx, a.shutdownResources); err != nil {
		a.Logger.ErrorwCtx(shutdownCtx, "Shutdown error", "error", err)
	}

	return runErr
}

func (a *App) shutdownResources(ctx context.Context) []error {
	errs := a.dbConnector.ShutdownDatabases(a.redis, a.db)

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
		}
	}

	return errs
}
