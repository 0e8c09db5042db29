package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/meter"
	"github.com/kai200407/aipostblog/policy"
	"github.com/kai200407/aipostblog/provider/backends"
	"github.com/kai200407/aipostblog/quota"
	quotapg "github.com/kai200407/aipostblog/quota/postgres"
	quotaredis "github.com/kai200407/aipostblog/quota/redis"
	"github.com/kai200407/aipostblog/quota/sqlite"
	"github.com/kai200407/aipostblog/templates"
)

// stores is an opened quota store plus its optional history recorder.
type stores struct {
	quota    aipostblog.QuotaStore
	recorder aipostblog.UsageRecorder
	close    func()
}

func openStores(ctx context.Context, cfg aipostblog.StoreConfig) (*stores, error) {
	switch cfg.Driver {
	case aipostblog.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &stores{quota: s, recorder: s, close: func() { _ = s.Close() }}, nil

	case aipostblog.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		var opts []quotapg.Option
		if cfg.Prefix != "" {
			opts = append(opts, quotapg.WithTablePrefix(cfg.Prefix))
		}
		s := quotapg.New(pool, opts...)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{quota: s, recorder: s, close: pool.Close}, nil

	case aipostblog.StoreRedis:
		opt, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		client := goredis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		var opts []quotaredis.Option
		if cfg.Prefix != "" {
			opts = append(opts, quotaredis.WithKeyPrefix(cfg.Prefix))
		}
		return &stores{quota: quotaredis.New(client, opts...), close: func() { _ = client.Close() }}, nil

	default:
		s := quota.NewMemoryStore()
		return &stores{quota: s, recorder: s, close: func() {}}, nil
	}
}

// services is everything a generation needs.
type services struct {
	stores *stores
	ledger *aipostblog.Ledger
	router *aipostblog.Router
}

func (s *services) Close() { s.stores.close() }

func (a *app) services(ctx context.Context, tier aipostblog.PlanTier) (*services, error) {
	st, err := openStores(ctx, a.cfg.Store)
	if err != nil {
		return nil, err
	}

	ledger := aipostblog.NewLedger(st.quota,
		aipostblog.WithPeriod(a.cfg.Period),
		aipostblog.WithPlans(a.cfg.PlanBudgets()),
		aipostblog.WithLedgerLogger(a.logger.Named("ledger")),
	)

	catalog := aipostblog.DefaultCatalog()
	table, ok := policy.ByName(a.cfg.Fallback, catalog, aipostblog.TerminalModel)
	if !ok {
		st.close()
		return nil, fmt.Errorf("unknown fallback strategy %q", a.cfg.Fallback)
	}
	fallbacks, err := aipostblog.NewFallbackBuilder(catalog, table, aipostblog.TerminalModel)
	if err != nil {
		st.close()
		return nil, err
	}

	registry := aipostblog.NewRegistry(catalog, backends.Factories(a.cfg))
	opts := []aipostblog.Option{
		aipostblog.WithFallbackBuilder(fallbacks),
		aipostblog.WithLedger(ledger),
		aipostblog.WithPlanSource(aipostblog.StaticPlan(tier)),
		aipostblog.WithMeter(meter.NewLogMeter(a.logger)),
		aipostblog.WithGenerationDefaults(a.cfg.GenerationTemperature(), a.cfg.MaxTokens),
	}
	if st.recorder != nil {
		opts = append(opts, aipostblog.WithUsageRecorder(st.recorder))
	}
	router, err := aipostblog.NewRouter(registry, templates.Default(), opts...)
	if err != nil {
		st.close()
		return nil, err
	}
	return &services{stores: st, ledger: ledger, router: router}, nil
}
