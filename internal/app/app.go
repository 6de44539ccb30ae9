// Package app wires Amila's collaborators together and runs either the api
// or worker mode, grounded on the teacher's internal/app.Run entry point.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/amila/internal/config"
	"github.com/wisbric/amila/internal/httpapi"
	"github.com/wisbric/amila/internal/httpserver"
	"github.com/wisbric/amila/internal/platform"
	"github.com/wisbric/amila/internal/telemetry"
	"github.com/wisbric/amila/pkg/checkpoint"
	"github.com/wisbric/amila/pkg/dbrouter"
	"github.com/wisbric/amila/pkg/hitl"
	"github.com/wisbric/amila/pkg/lifecycle"
	"github.com/wisbric/amila/pkg/llmadapter"
	"github.com/wisbric/amila/pkg/orchestrator"
	"github.com/wisbric/amila/pkg/resilience"
	"github.com/wisbric/amila/pkg/resultstore"
	"github.com/wisbric/amila/pkg/webhook"
)

// Run is the main application entry point: given the loaded config, connect
// to infrastructure and start the requested mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting amila", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// buildOrchestrator wires the Database Router, Resilience Layer, LLM
// adapter, Result Store, and HITL gate into an Engine for api mode (worker
// mode does not build one). The Postgres adapter reuses
// cfg.DatabaseURL via database/sql's pgx stdlib driver so query execution
// and checkpoint storage share the same backing database without a second
// connection string.
func buildOrchestrator(cfg *config.Config, logger *slog.Logger, checkpoints *checkpoint.Store, bus *lifecycle.Bus, rdb *redis.Client) (*orchestrator.Engine, *resilience.Manager, *dbrouter.Router, error) {
	router := dbrouter.NewRouter()

	pgStdlib, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	router.Register(dbrouter.NewPostgresAdapter(sqlx.NewDb(pgStdlib, "pgx")))

	if cfg.OracleDatabaseURL != "" {
		oracleDB, err := sql.Open(cfg.OracleDriverName, cfg.OracleDatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening oracle connection: %w", err)
		}
		router.Register(dbrouter.NewOracleAdapter(oracleDB))
	} else {
		logger.Info("oracle backend disabled (AMILA_ORACLE_DATABASE_URL not set)")
	}

	if cfg.DorisDatabaseURL != "" {
		dorisDB, err := sql.Open(cfg.DorisDriverName, cfg.DorisDatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening doris connection: %w", err)
		}
		router.Register(dbrouter.NewDorisAdapter(dorisDB))
	} else {
		logger.Info("doris backend disabled (AMILA_DORIS_DATABASE_URL not set)")
	}

	breakers := resilience.NewManager(resilience.Config{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		RecoveryTimeout:  mustParseDuration(cfg.BreakerRecoveryTimeout, 60*time.Second),
		SuccessThreshold: uint32(cfg.BreakerSuccessThreshold),
	})

	var llmClient llmadapter.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient = llmadapter.NewAnthropicClient(cfg.AnthropicAPIKey, "")
	} else {
		logger.Warn("no ANTHROPIC_API_KEY set, using stub LLM client")
		llmClient = llmadapter.NewStubClient()
	}

	gate := hitl.NewGate(checkpoints, bus)
	results := resultstore.NewStore(rdb)

	deps := &orchestrator.Deps{
		LLM:      llmClient,
		Router:   router,
		Breakers: breakers,
		Approval: gate,
		Results:  results,
		Logger:   logger,
	}

	engine := orchestrator.NewEngine(deps, checkpoints, bus, logger)
	return engine, breakers, router, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	checkpoints := checkpoint.NewStore(db)
	bus := lifecycle.NewBus(rdb)

	engine, breakers, router, err := buildOrchestrator(cfg, logger, checkpoints, bus, rdb)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	webhookStore := webhook.NewStore(db)
	webhookQueue := webhook.NewQueue(rdb, logger)
	deliverer := webhook.NewDeliverer(webhookStore, nil, logger, telemetry.WebhookDeliveriesTotal)
	dispatcher := webhook.NewDispatcher(webhookStore, webhookQueue, logger)
	gate := hitl.NewGate(checkpoints, bus)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthTokenSecret:    cfg.AuthTokenSecret,
		CSRFSecret:         cfg.CSRFSecret,
	}, logger, db, rdb, metricsReg)

	apiHandler := httpapi.New(logger, engine, checkpoints, gate, bus, dispatcher, webhookStore, deliverer, router, breakers)
	apiHandler.Register(srv.APIRouter)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker starts the checkpoint sweeper and webhook delivery worker — the
// two background loops spec.md §9 expects to run outside the request path.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	_ = metricsReg
	checkpoints := checkpoint.NewStore(db)
	sweeper := checkpoint.NewSweeper(checkpoints, logger, cfg.CheckpointRetentionDays, cfg.CheckpointMaxPerThread)

	webhookStore := webhook.NewStore(db)
	webhookQueue := webhook.NewQueue(rdb, logger)
	deliverer := webhook.NewDeliverer(webhookStore, nil, logger, telemetry.WebhookDeliveriesTotal)
	dispatchWorker := webhook.NewWorker(webhookStore, webhookQueue, deliverer, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- sweeper.Run(ctx) }()
	go func() { errCh <- dispatchWorker.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down worker")
		return nil
	case err := <-errCh:
		return err
	}
}

func mustParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
