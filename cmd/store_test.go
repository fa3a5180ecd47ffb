package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arbiter/internal/config"
	"github.com/sells-group/arbiter/internal/fetcher"
	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/store"
)

func TestInitStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	// migrated: listing works on the fresh database
	sessions, err := st.ListSessions(context.Background(), store.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "arbiter.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitRegistry(t *testing.T) {
	cfg = &config.Config{}
	reg, err := initRegistry()
	require.NoError(t, err)
	assert.Equal(t, model.TierMLS, reg.TierOf("Stellar MLS"))

	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  sources:
    - { key: zillow, tier: 3, reliability: 70 }
`), 0o644))
	cfg.Arbitration.TierTable = path

	reg, err = initRegistry()
	require.NoError(t, err)
	assert.Equal(t, model.TierSpecialized, reg.TierOf("Zillow"))
	assert.Equal(t, model.TierLLM, reg.TierOf("Stellar MLS"))

	cfg.Arbitration.TierTable = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initRegistry()
	assert.Error(t, err)
}

func TestInitEnricher_RegistersMetrics(t *testing.T) {
	cfg = &config.Config{}
	cfg.Arbitration.MinQuorum = 2
	cfg.Fetch.Concurrency = 2
	cfg.Fetch.MaxAttempts = 1

	promReg := prometheus.NewRegistry()
	e, err := initEnricher(promReg)
	require.NoError(t, err)

	_, err = e.Enrich(context.Background(), model.Property{ID: "p"}, []fetcher.Source{
		fetcher.Static{SourceName: "Stellar MLS", Fields: map[string]any{"bedrooms": 3}},
	}, 0)
	require.NoError(t, err)

	families, err := promReg.Gather()
	require.NoError(t, err)
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = f.GetName()
	}
	assert.Contains(t, names, "arbiter_decisions_total")
}

func TestConfiguredSources(t *testing.T) {
	cfg = &config.Config{
		Fetch: config.FetchConfig{RatePerSec: 3, TimeoutSecs: 5},
		Sources: []config.SourceConfig{
			{Name: "WalkScore", URL: "https://ws.example.com/{address}"},
			{Name: "Stellar MLS", URL: "https://mls.example.com/{mls_number}", RatePerSec: 1},
		},
	}

	sources := configuredSources()
	require.Len(t, sources, 2)
	assert.Equal(t, "WalkScore", sources[0].Name())
	assert.InDelta(t, 3.0, float64(sources[0].(*fetcher.HTTPSource).Limiter().Limit()), 0.001)
	assert.InDelta(t, 1.0, float64(sources[1].(*fetcher.HTTPSource).Limiter().Limit()), 0.001)
}
