// Package app owns the application lifecycle: dependency construction in
// order, startup, and graceful shutdown in reverse order.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/internal/config"
	"github.com/graceway/engagement-engine/internal/handler"
	"github.com/graceway/engagement-engine/internal/server"
	"github.com/graceway/engagement-engine/pkg/action"
	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/generator"
	"github.com/graceway/engagement-engine/pkg/lock"
	"github.com/graceway/engagement-engine/pkg/pipeline"
	"github.com/graceway/engagement-engine/pkg/rule"
	"github.com/graceway/engagement-engine/pkg/state"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	httpServer        *server.HTTPServer
	metricsServer     *server.MetricsServer
	redisClient       *redis.Client
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes a new application instance. Components come
// up in dependency order: Redis, catalog, stores, pipeline, seed rules,
// servers, telemetry.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	client, err := state.InitRedisClient(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	app.redisClient = client

	catalog := rule.NewCatalog(client, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	states := state.NewRedisStore(client)
	ledger := action.NewRedisLedger(client)
	locker := lock.NewRedisLocker(client)
	gen := generator.New(catalog, locker, cfg.MinRulesPerCategory)
	manager := pipeline.NewManager(event.NewLog(client), states, rule.NewEvaluator(catalog), ledger)

	if err := app.seedRules(ctx, catalog); err != nil {
		return nil, err
	}

	h := handler.New(
		manager,
		states,
		ledger,
		catalog,
		gen,
		state.NewHealthChecker(client),
		time.Duration(cfg.ActionExpiryMinutes)*time.Minute,
	)

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, cfg.Environment, cfg.CORSAllowOrigins)
	if err := app.httpServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup http server: %w", err)
	}
	h.RegisterRoutes(app.httpServer.Engine())

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.OtelServiceName, cfg.Environment, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	logrus.Info("application initialized successfully")
	return app, nil
}

// seedRules applies the YAML seed file when one is configured and present.
// A missing file is not an error: a fresh deployment may rely entirely on
// the admin API and the auto generator.
func (a *App) seedRules(ctx context.Context, catalog *rule.Catalog) error {
	if a.cfg.SeedPath == "" {
		return nil
	}
	if _, err := os.Stat(a.cfg.SeedPath); os.IsNotExist(err) {
		logrus.Warnf("seed file %s not found, skipping rule seeding", a.cfg.SeedPath)
		return nil
	}

	seed, err := pipeline.LoadSeed(a.cfg.SeedPath)
	if err != nil {
		return fmt.Errorf("failed to load seed from %s: %w", a.cfg.SeedPath, err)
	}
	created, err := pipeline.ApplySeed(ctx, catalog, seed)
	if err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}
	logrus.Infof("rule seeding complete: %d created from %s", created, a.cfg.SeedPath)
	return nil
}
