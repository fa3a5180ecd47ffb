package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/arbiter"
	"github.com/sells-group/arbiter/internal/fetcher"
	"github.com/sells-group/arbiter/internal/resilience"
	"github.com/sells-group/arbiter/internal/session"
	"github.com/sells-group/arbiter/internal/store"
	"github.com/sells-group/arbiter/internal/tier"
	"github.com/sells-group/arbiter/internal/validate"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "arbiter.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initRegistry loads the configured tier table, or the built-in one.
func initRegistry() (*tier.Registry, error) {
	if cfg.Arbitration.TierTable == "" {
		return tier.Default(), nil
	}
	reg, err := tier.LoadRegistry(cfg.Arbitration.TierTable)
	if err != nil {
		return nil, err
	}
	zap.L().Info("tier table loaded",
		zap.String("path", cfg.Arbitration.TierTable),
		zap.Int("sources", len(reg.Entries())),
	)
	return reg, nil
}

// initEnricher builds the enricher from config. Metrics register on
// promReg when it is non-nil.
func initEnricher(promReg prometheus.Registerer) (*session.Enricher, error) {
	reg, err := initRegistry()
	if err != nil {
		return nil, err
	}

	var metrics *arbiter.Metrics
	if promReg != nil {
		metrics = arbiter.NewMetrics(promReg)
	}

	return session.NewEnricher(reg, validate.Default(), session.Options{
		Concurrency: cfg.Fetch.Concurrency,
		Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Backoff:     resilience.DefaultBackoff().WithAttempts(cfg.Fetch.MaxAttempts),
		Breakers: resilience.NewBreakers(
			cfg.Fetch.BreakerThreshold,
			time.Duration(cfg.Fetch.BreakerCooldownSecs)*time.Second,
		),
		MinQuorum: cfg.Arbitration.MinQuorum,
		Metrics:   metrics,
		Logger:    zap.L(),
	}), nil
}

// configuredSources builds the HTTP sources listed in config.
func configuredSources() []fetcher.Source {
	sources := make([]fetcher.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		rps := sc.RatePerSec
		if rps <= 0 {
			rps = cfg.Fetch.RatePerSec
		}
		sources = append(sources, fetcher.NewHTTPSource(sc.Name, fetcher.HTTPOptions{
			URL:        sc.URL,
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			RatePerSec: rps,
			Headers:    sc.Headers,
		}))
	}
	return sources
}
