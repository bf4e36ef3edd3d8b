package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/mvariant/internal/adapters/memory"
	"github.com/emiliopalmerini/mvariant/internal/adapters/otel"
	"github.com/emiliopalmerini/mvariant/internal/adapters/redis"
	"github.com/emiliopalmerini/mvariant/internal/adapters/turso"
	"github.com/emiliopalmerini/mvariant/internal/analytics"
	"github.com/emiliopalmerini/mvariant/internal/assigner"
	"github.com/emiliopalmerini/mvariant/internal/assignment"
	"github.com/emiliopalmerini/mvariant/internal/catalog"
	"github.com/emiliopalmerini/mvariant/internal/experiment"
	"github.com/emiliopalmerini/mvariant/internal/infrastructure/config"
	"github.com/emiliopalmerini/mvariant/internal/infrastructure/database"
	"github.com/emiliopalmerini/mvariant/internal/logger"
	"github.com/emiliopalmerini/mvariant/internal/migrate"
	"github.com/emiliopalmerini/mvariant/internal/ports"
	"github.com/emiliopalmerini/mvariant/internal/remoteconfig"
	"github.com/emiliopalmerini/mvariant/internal/util"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *database.Client

	Experiments ports.ExperimentRepository
	Assignments ports.AssignmentRepository
	Source      ports.ConfigSource

	Fetcher *remoteconfig.Fetcher
	Loader  *catalog.Loader
	Catalog *catalog.Cache
	Store   *assignment.Store
	Service *experiment.Service

	dispatcher *analytics.Dispatcher
	closers    []func(context.Context) error
}

// Backends are the storage and config collaborators of the engine.
type Backends struct {
	Experiments ports.ExperimentRepository
	Assignments ports.AssignmentRepository
	Source      ports.ConfigSource
	Sinks       []ports.AnalyticsSink
}

// NewAppContext opens the configured backends and builds the engine on them.
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	log, err := logger.New(logger.Options{
		Mode:        cfg.Log.Mode,
		Level:       cfg.Log.Level,
		HashUserIDs: cfg.Log.HashUserIDs,
		HashSalt:    cfg.Log.HashSalt,
	})
	if err != nil {
		return nil, err
	}

	var (
		backends Backends
		db       *database.Client
		closers  []func(context.Context) error
	)

	if cfg.Source == "memory" {
		backends.Experiments = memory.NewExperimentRepository()
		backends.Assignments = memory.NewAssignmentRepository()
		backends.Source = memory.NewConfigSource(nil)
	} else {
		db, err = openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func(context.Context) error { return db.Close() })

		repos := turso.NewRepositories(db.DB)
		backends.Experiments = repos.Experiments
		backends.Assignments = repos.Assignments
		backends.Source = repos.Config
	}

	if cfg.Source == "redis" {
		src, err := redis.NewConfigSource(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			HashKey:  cfg.Redis.HashKey,
		}, log)
		if err != nil {
			closeAll(ctx, closers)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		backends.Source = src
		closers = append(closers, func(context.Context) error { return src.Close() })
	}

	backends.Sinks = append(backends.Sinks, analytics.NewLogSink(log))
	sink := otel.Open(ctx, otel.LoadConfig(), log)
	backends.Sinks = append(backends.Sinks, sink)
	closers = append(closers, sink.Close)

	app, err := NewAppContextWith(ctx, cfg, log, backends)
	if err != nil {
		closeAll(ctx, closers)
		return nil, err
	}
	app.DB = db
	app.closers = append(closers, app.closers...)
	return app, nil
}

// NewAppContextWith wires the engine on caller-provided backends and
// registers the in-app config defaults with the source.
func NewAppContextWith(ctx context.Context, cfg *config.Config, log *logger.Logger, b Backends) (*AppContext, error) {
	fetcher := remoteconfig.NewFetcher(b.Source, remoteconfig.Options{
		MinRefreshInterval: cfg.Fetch.MinRefreshInterval,
		MaxAttempts:        cfg.Fetch.MaxAttempts,
		BaseDelay:          cfg.Fetch.BaseDelay,
		Logger:             log.With("component", "remoteconfig"),
	})
	if err := fetcher.SetDefaults(ctx, remoteconfig.DefaultValues()); err != nil {
		fetcher.Close()
		return nil, err
	}
	loader := catalog.NewLoader(fetcher, b.Experiments, catalog.LoaderOptions{
		Key:    cfg.Catalog.Key,
		Logger: log.With("component", "catalog"),
	})
	cache := catalog.NewCache(loader, catalog.CacheOptions{
		RefreshInterval: cfg.Catalog.RefreshInterval,
		FailureTTL:      cfg.Catalog.FailureTTL,
	})
	store := assignment.NewStore(b.Assignments, assignment.Options{CacheCapacity: cfg.AssignmentCacheSize})
	dispatcher := analytics.NewDispatcher(log.With("component", "analytics"), cfg.AnalyticsBuffer, b.Sinks...)

	svc := experiment.NewService(cache, store, assigner.New(nil), experiment.Options{
		Analytics: dispatcher,
		Logger:    log.With("component", "experiment"),
	})

	app := &AppContext{
		Config:      cfg,
		Logger:      log,
		Experiments: b.Experiments,
		Assignments: b.Assignments,
		Source:      b.Source,
		Fetcher:     fetcher,
		Loader:      loader,
		Catalog:     cache,
		Store:       store,
		Service:     svc,
		dispatcher:  dispatcher,
	}
	app.closers = []func(context.Context) error{
		dispatcher.Close,
		func(context.Context) error { fetcher.Close(); return nil },
	}
	return app, nil
}

func openDatabase(ctx context.Context, cfg config.Database, log *logger.Logger) (*database.Client, error) {
	url := cfg.URL
	local := url == ""
	if local {
		var err error
		if url, err = util.LocalDatabaseURL(); err != nil {
			return nil, err
		}
	}

	db, err := database.New(ctx, url, cfg.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Remote schemas are managed with "mvariant migrate".
	if local {
		if err := migrate.RunAll(ctx, db.DB, log); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate local database: %w", err)
		}
	}
	return db, nil
}

// Close flushes analytics and releases all resources held by the AppContext.
func (a *AppContext) Close(ctx context.Context) error {
	// Engine closers were registered last and must run first.
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return errors.Join(errs...)
}

func closeAll(ctx context.Context, closers []func(context.Context) error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i](ctx)
	}
}
