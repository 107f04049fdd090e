package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/clients/redis"
	"github.com/yungbote/rankset/internal/data/db"
	"github.com/yungbote/rankset/internal/data/repos"
	"github.com/yungbote/rankset/internal/observability"
	"github.com/yungbote/rankset/internal/platform/logger"
	"github.com/yungbote/rankset/internal/ranking"
	"github.com/yungbote/rankset/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Set
	Registry *ranking.Registry
	Metrics  *observability.Metrics
	Refresh  services.RankingRefreshService

	dbService     *db.DatabaseService
	locker        redis.Locker
	traceShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithLogger(log)
}

var initTracing = observability.InitTracing

// NewWithLogger wires the application around an existing logger, letting
// the CLI pick verbosity before anything logs. Anything started before a
// failure is shut down again.
func NewWithLogger(log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	a := &App{Log: log, Cfg: cfg}
	a.traceShutdown = initTracing(context.Background(), log, cfg.Tracing)
	a.Metrics = observability.Init(log)
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	dbs, err := db.NewDatabaseService(log)
	if err != nil {
		return fail(fmt.Errorf("init database: %w", err))
	}
	a.dbService = dbs
	if err := dbs.AutoMigrateAll(); err != nil {
		return fail(fmt.Errorf("database automigrate: %w", err))
	}
	a.DB = dbs.DB()

	a.Repos = wireRepos(a.DB, log)
	a.Registry, err = wireRegistry(a.DB, log, cfg, a.Repos, a.Metrics)
	if err != nil {
		return fail(err)
	}

	a.locker, err = redis.NewLocker(log, cfg.RedisAddr)
	if err != nil {
		return fail(fmt.Errorf("init refresh lock: %w", err))
	}

	var lockObserver services.LockObserver
	if a.Metrics != nil {
		lockObserver = a.Metrics
	}
	a.Refresh = services.NewRankingRefreshService(log, a.Registry, a.locker, cfg.LockTTL, lockObserver)
	return a, nil
}

// PushMetrics sends this run's metrics to the configured Pushgateway.
func (a *App) PushMetrics(ctx context.Context, runID string) error {
	if a == nil || a.Metrics == nil || a.Cfg.PushgatewayURL == "" {
		return nil
	}
	return a.Metrics.Push(ctx, a.Cfg.PushgatewayURL, map[string]string{"run_id": runID})
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.locker != nil {
		_ = a.locker.Close()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
