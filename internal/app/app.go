// Package app wires the runtime into a demo host process: storage,
// metrics, the optional sandbox backend, and a console rendering of the
// widget surface.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/internal/config"
	"github.com/hatchboard/engage-runtime/internal/sandbox"
	"github.com/hatchboard/engage-runtime/internal/server"
	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/runtime"
	"github.com/hatchboard/engage-runtime/pkg/storage"
)

// App holds all application dependencies and manages the lifecycle.
type App struct {
	cfg           *config.Config
	metricsServer *server.MetricsServer
	sandbox       *sandbox.Server
	redisClient   *redis.Client
	runtime       *runtime.Runtime
}

// New creates and initializes the application. Components come up in
// dependency order: sandbox backend (when enabled), storage, then the
// widget runtime and the metrics server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	backendURL := cfg.BackendURL
	if cfg.SandboxEnabled {
		catalog, err := sandbox.LoadCatalog(cfg.SandboxCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load sandbox catalog from %s: %w", cfg.SandboxCatalogPath, err)
		}
		app.sandbox = sandbox.NewServer(catalog, cfg.SandboxPort)
		app.sandbox.Start()
		backendURL = fmt.Sprintf("http://localhost:%d", cfg.SandboxPort)
		logrus.Infof("sandbox backend enabled, runtime pointed at %s", backendURL)
	}

	store, err := app.initStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	consoleUI := newConsole()
	rt, err := runtime.Init(ctx, runtime.Options{
		Client:       api.NewClient(backendURL, cfg.ProjectID),
		Store:        store,
		Surface:      consoleUI,
		Observer:     consoleUI,
		PageURL:      cfg.PageURL,
		DeviceType:   cfg.DeviceType,
		VisitorClass: cfg.VisitorClass,
	})
	if err == runtime.ErrDisabled {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to boot runtime: %w", err)
	}
	app.runtime = rt
	consoleUI.attach(rt)

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	logrus.Infof("application initialized for project %s", cfg.ProjectID)
	return app, nil
}

// initStorage builds the session/durable bucket pair. The session bucket
// is always in-memory; the durable bucket uses Redis when configured.
func (a *App) initStorage(ctx context.Context) (*storage.Store, error) {
	store := &storage.Store{
		Session: storage.NewMemoryBucket(),
		Durable: storage.NewMemoryBucket(),
	}

	addr := a.cfg.RedisAddr()
	if addr == "" {
		logrus.Warn("REDIS_HOST not set, frequency caps will not survive restarts")
		return store, nil
	}

	client, err := storage.InitRedisClient(ctx, addr, a.cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	a.redisClient = client
	store.Durable = storage.NewRedisBucket(client, a.cfg.ProjectID)
	logrus.Infof("durable storage backed by Redis at %s", addr)
	return store, nil
}
