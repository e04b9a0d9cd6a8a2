package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/selfdev-app/selfdev/config"
	"github.com/selfdev-app/selfdev/internal/application/command"
	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/application/query"
	domaincoach "github.com/selfdev-app/selfdev/internal/domain/coach"
	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/internal/infrastructure/external/coach"
	"github.com/selfdev-app/selfdev/internal/infrastructure/messaging"
	"github.com/selfdev-app/selfdev/internal/infrastructure/metrics"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/memory"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/postgres"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/redis"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/sqlite"
	"github.com/selfdev-app/selfdev/internal/interface/http/handlers"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// stores groups the repositories of one backend.
type stores struct {
	progress  progression.ProgressRepository
	habits    habit.Repository
	goals     goal.Repository
	plans     training.PlanRepository
	exercises training.ExerciseCatalog
	watcher   habit.Watcher
}

type eventBus interface {
	shared.EventBus
	Close() error
}

// app holds every wired component. Close releases them in reverse order.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	stores  stores
	bus     eventBus
	metrics *metrics.Metrics
	health  *handlers.HealthChecker
	engines *engine.Registry
	env     command.Env

	closers []func() error
}

func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts).With(logger.String("app", cfg.App.Name), logger.String("version", cfg.App.Version))
}

// buildApp wires storage, events, metrics and the progression engines.
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		health:  handlers.NewHealthChecker(cfg.App.Version),
	}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openEvents(); err != nil {
		a.Close()
		return nil, err
	}

	a.engines = engine.NewRegistry(engine.Dependencies{
		Progress:  a.stores.progress,
		Habits:    a.stores.habits,
		Goals:     a.stores.goals,
		Plans:     a.stores.plans,
		Publisher: a.bus,
		Logger:    log,
	}, engine.DefaultConfig())

	a.env = command.Env{
		Publisher: a.bus,
		Logger:    log,
		Location:  cfg.App.Location,
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.App.Storage {
	case config.DriverMemory:
		store := memory.NewStore()
		a.stores = stores{
			progress:  store,
			habits:    store,
			goals:     store.Goals(),
			plans:     store.Plans(),
			exercises: store,
			watcher:   store,
		}

	case config.DriverSQLite:
		db, err := sqlite.Open(a.cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.health.AddCheck("sqlite", db.Ping)
		a.stores = stores{
			progress:  sqlite.NewProgressRepository(db),
			habits:    sqlite.NewHabitRepository(db),
			goals:     sqlite.NewGoalRepository(db),
			plans:     sqlite.NewPlanRepository(db),
			exercises: sqlite.NewExerciseCatalog(db),
		}

	case config.DriverPostgres:
		conn, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		if n, err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		} else if n > 0 {
			a.log.Info("applied migrations", logger.Int("count", n))
		}
		a.stores = stores{
			progress:  postgres.NewProgressRepository(conn),
			habits:    postgres.NewHabitRepository(conn),
			goals:     postgres.NewGoalRepository(conn),
			plans:     postgres.NewPlanRepository(conn),
			exercises: postgres.NewExerciseCatalog(conn),
		}

	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.App.Storage)
	}
	return nil
}

func (a *app) openPostgres(ctx context.Context) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = a.cfg.Database.URL
	pgCfg.MaxConns = int32(a.cfg.Database.MaxConns)
	pgCfg.MinConns = int32(a.cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { conn.Close(); return nil })
	a.health.AddCheck("postgres", conn.Ping)
	return conn, nil
}

// openEvents creates the event bus. With Redis the bus fans events out to
// other replicas and progress reads go through the cache.
func (a *app) openEvents() error {
	if !a.cfg.Redis.Enabled {
		a.bus = messaging.NewBus(messaging.BusConfig{Async: true, Workers: 4, Logger: a.log})
		a.closers = append(a.closers, a.bus.Close)
		return a.subscribe(nil)
	}

	rc := a.cfg.Redis
	cache, err := redis.NewCache(redis.Config{
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		MaxRetries:   3,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, cache.Close)
	a.health.AddCheck("redis", cache.Ping)

	a.stores.progress = redis.NewProgressCache(a.stores.progress, cache, a.log)
	watcher := redis.NewHabitWatcher(a.stores.habits, cache, a.log)
	a.stores.watcher = watcher

	bus, err := messaging.NewDistributedBus(messaging.DistributedBusConfig{
		Broadcaster: cache,
		Channel:     rc.EventChannel,
		Local:       messaging.BusConfig{Async: true, Workers: 4},
		Logger:      a.log,
	})
	if err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	a.bus = bus
	a.closers = append(a.closers, bus.Close)
	return a.subscribe(watcher)
}

func (a *app) subscribe(watcher *redis.HabitWatcher) error {
	if err := a.bus.SubscribeAll(a.metrics.HandleEvent); err != nil {
		return err
	}
	if watcher == nil {
		return nil
	}
	if err := a.bus.Subscribe(shared.EventHabitChanged, watcher.HandleEvent); err != nil {
		return err
	}
	return a.bus.Subscribe(shared.EventHabitToggled, watcher.HandleEvent)
}

func (a *app) coachClient(ctx context.Context) (domaincoach.Client, error) {
	cc := a.cfg.Coach
	guard := coach.GuardConfig{RequestsPerMinute: cc.RequestsPerMinute, Burst: cc.Burst, Timeout: cc.Timeout}

	if !a.cfg.CoachEnabled() {
		a.log.Warn("coach disabled, no provider or api key configured")
		return coach.Disabled{}, nil
	}
	switch cc.Provider {
	case config.ProviderOpenAI:
		return coach.NewOpenAI(coach.OpenAIConfig{APIKey: cc.APIKey, Model: cc.Model, BaseURL: cc.BaseURL, Guard: guard}, a.log)
	default:
		return coach.NewGemini(ctx, coach.GeminiConfig{APIKey: cc.APIKey, Model: cc.Model, BaseURL: cc.BaseURL, Guard: guard}, a.log)
	}
}

func (a *app) progressReader() *query.ProgressReader {
	return query.NewProgressReader(a.stores.progress, nil, nil)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.log.Sync()
	return errors.Join(errs...)
}
