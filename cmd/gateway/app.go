package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/openapigw/internal/auth"
	"github.com/vyrodovalexey/openapigw/internal/config"
	"github.com/vyrodovalexey/openapigw/internal/counter"
	"github.com/vyrodovalexey/openapigw/internal/directory"
	"github.com/vyrodovalexey/openapigw/internal/filter"
	"github.com/vyrodovalexey/openapigw/internal/gateway"
	"github.com/vyrodovalexey/openapigw/internal/health"
	"github.com/vyrodovalexey/openapigw/internal/metering"
	"github.com/vyrodovalexey/openapigw/internal/middleware"
	"github.com/vyrodovalexey/openapigw/internal/observability"
	"github.com/vyrodovalexey/openapigw/internal/proxy"
	"github.com/vyrodovalexey/openapigw/internal/registry"
	"github.com/vyrodovalexey/openapigw/internal/replay"
	"github.com/vyrodovalexey/openapigw/internal/routing"
	"github.com/vyrodovalexey/openapigw/migrations"
)

// application holds all application components.
type application struct {
	config *config.GatewayConfig
	logger observability.Logger

	tracer     *observability.Tracer
	checker    *health.Checker
	db         *sql.DB
	redis      redis.UniversalClient
	static     *directory.Static
	counter    metering.Counter
	dispatcher *metering.Dispatcher
	filter     *filter.Filter
	gateway    *gateway.Gateway
}

// newApplication wires every component from cfg. On error, whatever was
// already opened is closed.
func newApplication(ctx context.Context, cfg *config.GatewayConfig, logger observability.Logger) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		checker: health.NewChecker(version, logger),
	}
	defer func() {
		if err != nil {
			_ = app.close(context.WithoutCancel(ctx))
		}
	}()

	tracing := cfg.Observability.Tracing
	app.tracer, err = observability.NewTracer(ctx, observability.TracerConfig{
		Enabled:      tracing.Enabled,
		ServiceName:  tracing.ServiceName,
		OTLPEndpoint: tracing.OTLPEndpoint,
		SamplingRate: tracing.SamplingRate,
		Insecure:     tracing.Insecure,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	if cfg.UsesPostgres() {
		if app.db, err = openDatabase(ctx, cfg.Database, logger); err != nil {
			return nil, err
		}
		app.checker.Register(health.SQLHealthCheck("postgres", app.db))
	}
	if cfg.UsesRedis() {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.checker.Register(health.RedisHealthCheck("redis", app.redis))
	}

	dir, err := app.buildDirectory()
	if err != nil {
		return nil, err
	}
	reg, err := app.buildRegistry()
	if err != nil {
		return nil, err
	}
	if app.counter, err = app.buildCounter(); err != nil {
		return nil, err
	}

	app.dispatcher = metering.NewDispatcher(app.wrapCounter(app.counter),
		metering.WithDispatcherLogger(logger),
		metering.WithWorkers(cfg.Metering.Workers),
		metering.WithQueueSize(cfg.Metering.QueueSize),
		metering.WithCallTimeout(cfg.Metering.CallTimeout.Duration()),
	)

	if app.filter, err = app.buildFilter(dir, reg); err != nil {
		return nil, err
	}

	forwarder, err := proxy.NewForwarder(cfg.Forward.Target,
		proxy.WithLogger(logger),
		proxy.WithTimeout(cfg.Forward.Timeout.Duration()),
	)
	if err != nil {
		return nil, err
	}

	// The body limit applies only to requests the filter admitted; everything
	// it rejects gets the uniform empty 403 regardless of size.
	limited := middleware.BodyLimit(cfg.Server.MaxRequestBodySize, logger)(forwarder)
	handler := observability.TracingMiddleware(app.tracer)(app.filter.Wrap(limited))
	app.gateway, err = gateway.New(gateway.Config{
		Public: gateway.ListenerConfig{
			Name:         "public",
			Address:      cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
			WriteTimeout: cfg.Server.WriteTimeout.Duration(),
			IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
		},
		Admin: gateway.ListenerConfig{
			Name:        "admin",
			Address:     cfg.Admin.Address,
			ReadTimeout: cfg.Server.ReadTimeout.Duration(),
			IdleTimeout: cfg.Server.IdleTimeout.Duration(),
		},
		AdminEnabled:    cfg.Admin.Enabled,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}, handler,
		gateway.WithLogger(logger),
		gateway.WithHealthChecker(app.checker),
	)
	if err != nil {
		return nil, err
	}

	return app, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Migrate {
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}
	return db, nil
}

func (a *application) buildDirectory() (auth.Directory, error) {
	cfg := a.config.Directory
	switch cfg.Type {
	case config.DirectoryStatic:
		s, err := directory.NewStatic(callerEntries(cfg.Callers))
		if err != nil {
			return nil, fmt.Errorf("failed to build caller directory: %w", err)
		}
		a.static = s
		return s, nil
	case config.DirectoryPostgres:
		return directory.NewPostgres(a.db), nil
	case config.DirectoryVault:
		v, err := directory.NewVault(directory.VaultConfig{
			Address:    cfg.Vault.Address,
			Token:      cfg.Vault.Token,
			Mount:      cfg.Vault.Mount,
			PathPrefix: cfg.Vault.PathPrefix,
			Timeout:    cfg.Vault.Timeout.Duration(),
			MaxRetries: cfg.Vault.MaxRetries,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build vault directory: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown directory type %q", cfg.Type)
	}
}

func (a *application) buildRegistry() (routing.Registry, error) {
	cfg := a.config.Registry
	switch cfg.Type {
	case config.RegistryStatic:
		entries := make([]registry.Entry, 0, len(cfg.Interfaces))
		for _, itf := range cfg.Interfaces {
			entries = append(entries, registry.Entry{
				ID:      itf.ID,
				Path:    itf.Path,
				Method:  itf.Method,
				OwnerID: itf.OwnerID,
			})
		}
		s, err := registry.NewStatic(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to build interface registry: %w", err)
		}
		return s, nil
	case config.RegistryPostgres:
		return registry.NewPostgres(a.db), nil
	default:
		return nil, fmt.Errorf("unknown registry type %q", cfg.Type)
	}
}

func (a *application) buildCounter() (metering.Counter, error) {
	switch a.config.Counter.Type {
	case config.CounterMemory:
		return counter.NewMemory(), nil
	case config.CounterRedis:
		return counter.NewRedis(a.redis, a.config.Counter.Prefix), nil
	case config.CounterPostgres:
		return counter.NewPostgres(a.db), nil
	default:
		return nil, fmt.Errorf("unknown counter type %q", a.config.Counter.Type)
	}
}

func (a *application) wrapCounter(c metering.Counter) metering.Counter {
	b := a.config.Metering.Breaker
	if !b.Enabled {
		return c
	}
	return metering.NewBreakerCounter(c, metering.BreakerConfig{
		Name:         "counter-" + a.config.Counter.Type,
		MinRequests:  b.MinRequests,
		FailureRatio: b.FailureRatio,
		OpenTimeout:  b.OpenTimeout.Duration(),
		Interval:     b.Interval.Duration(),
	}, a.logger)
}

func (a *application) buildFilter(dir auth.Directory, reg routing.Registry) (*filter.Filter, error) {
	cfg := a.config
	granularity, err := metering.ParseGranularity(cfg.Metering.Granularity)
	if err != nil {
		return nil, err
	}

	deps := filter.Dependencies{
		Directory: dir,
		Registry:  reg,
		Submitter: a.dispatcher,
	}
	if cfg.Replay.NonceStore.Enabled {
		deps.NonceStore = replay.NewRedisNonceStore(a.redis, cfg.Replay.NonceStore.Prefix)
	}

	f, err := filter.New(filter.Config{
		AllowedOrigins:     cfg.Filter.AllowedOrigins,
		TrustedProxies:     cfg.Filter.TrustedProxies,
		ReplayWindow:       cfg.Filter.ReplayWindow.Duration(),
		NonceCeiling:       cfg.Filter.NonceCeiling,
		SignatureAlgorithm: cfg.Filter.SignatureAlgorithm,
		Granularity:        granularity,
		LogChunks:          cfg.Metering.LogChunks,
		MaxLoggedBytes:     cfg.Metering.MaxLoggedBytes,
	}, deps, filter.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}
	return f, nil
}

func callerEntries(callers []config.CallerConfig) []directory.Entry {
	entries := make([]directory.Entry, 0, len(callers))
	for _, c := range callers {
		entries = append(entries, directory.Entry{ID: c.ID, AccessKey: c.AccessKey, SecretKey: c.SecretKey})
	}
	return entries
}

// close drains pending counter updates, then releases stores and the tracer.
func (a *application) close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil && !errors.Is(err, metering.ErrDispatcherClosed) {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
