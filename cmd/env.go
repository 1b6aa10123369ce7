package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/citewatch/tracker/internal/alerting"
	"github.com/citewatch/tracker/internal/api"
	"github.com/citewatch/tracker/internal/crypto"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/providers"
	"github.com/citewatch/tracker/internal/ratelimit"
	"github.com/citewatch/tracker/internal/scheduler"
	"github.com/citewatch/tracker/internal/scoring"
	"github.com/citewatch/tracker/internal/sentiment"
	"github.com/citewatch/tracker/internal/store"
	"github.com/citewatch/tracker/internal/tracking"
	"github.com/citewatch/tracker/internal/worker"
)

// coreEnv holds every dependency shared by track/schedule/migrate/serve/
// worker, mirroring the teacher's pipelineEnv bootstrap struct.
type coreEnv struct {
	Store    store.Store
	Registry *provideradapter.Registry
	Engine   *tracking.Engine
	Scoring  *scoring.Service
	Alerts   *alerting.Engine
	Planner  *scheduler.Planner
}

func (e *coreEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tracker.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCoreEnv builds every Temporal-agnostic dependency. Commands that
// don't run a Temporal worker or dispatch through one (track, migrate,
// retention, backfill, batch recheck) use this directly; serve, worker and
// schedule layer Temporal wiring on top via initWorkerEnv.
func initCoreEnv(ctx context.Context) (*coreEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if cfg.Redis.Addr != "" && ratelimit.SharedClient == nil {
		ratelimit.SharedClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var sealer *crypto.Sealer
	if cfg.Credential.EncryptionKey != "" {
		var err error
		sealer, err = crypto.NewSealer(crypto.DeriveKey(cfg.Credential.EncryptionKey))
		if err != nil {
			return nil, eris.Wrap(err, "init credential sealer")
		}
	}
	sealedProviders, err := providers.SealCredentials(ctx, st, sealer, cfg.Providers)
	if err != nil {
		return nil, eris.Wrap(err, "seal provider credentials")
	}

	registry := providers.BuildRegistry(sealedProviders)
	analyzer := sentiment.NewAnalyzer(nil, nil)
	alerts := alerting.New(st)
	engine := tracking.New(registry, st, analyzer, alerts)
	scoringSvc := scoring.New(st)
	planner := scheduler.New(st, registry.Enabled, cfg.Tracking.DailyRunAt)
	planner.SetScoringService(scoringSvc)
	planner.SetRetentionConfig(scheduler.RetentionConfig{
		CitationsDays: cfg.Retention.CitationsDays,
		AlertsDays:    cfg.Retention.AlertsDays,
		JobsDays:      cfg.Retention.JobsDays,
	})

	return &coreEnv{
		Store:    st,
		Registry: registry,
		Engine:   engine,
		Scoring:  scoringSvc,
		Alerts:   alerts,
		Planner:  planner,
	}, nil
}

// workerEnv layers a dialed Temporal client, a Dispatcher wired into
// core.Planner, and ready-to-run Activities on top of a coreEnv.
type workerEnv struct {
	*coreEnv
	Temporal   temporalsdkclient.Client
	Dispatcher *worker.Dispatcher
	Activities *worker.Activities
}

func (e *workerEnv) Close() {
	if e.Temporal != nil {
		e.Temporal.Close()
	}
	e.coreEnv.Close()
}

func initWorkerEnv(ctx context.Context) (*workerEnv, error) {
	core, err := initCoreEnv(ctx)
	if err != nil {
		return nil, err
	}

	tc, err := worker.DialClient(ctx, cfg.Queue)
	if err != nil {
		core.Close()
		return nil, eris.Wrap(err, "dial temporal")
	}

	dispatcher := worker.NewDispatcher(tc, cfg.Queue, cfg.Worker)
	core.Planner.SetDispatcher(dispatcher.Dispatch)

	activities := &worker.Activities{
		Store:       core.Store,
		Engine:      core.Engine,
		MaxAttempts: int32(cfg.Worker.MaxRetries) + 1,
	}

	return &workerEnv{coreEnv: core, Temporal: tc, Dispatcher: dispatcher, Activities: activities}, nil
}

func apiDeps(core *coreEnv) api.Deps {
	quickEngine := tracking.New(core.Registry, api.QuickStore, sentiment.NewAnalyzer(nil, nil), nil)
	return api.Deps{
		Store:       core.Store,
		Engine:      core.Engine,
		QuickEngine: quickEngine,
		Scoring:     core.Scoring,
		Alerts:      core.Alerts,
		Planner:     core.Planner,
		Registry:    core.Registry,
	}
}
