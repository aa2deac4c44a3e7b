package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtmp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 5, cfg.Google.RateLimit, 0.001)
	assert.Equal(t, 20, cfg.Google.PageSize)
	assert.Equal(t, 3, cfg.Google.MaxPagesPerCell)
	assert.Equal(t, 3, cfg.Fetch.GridDim)
	assert.Equal(t, 500, cfg.Fetch.ResultCap)
	assert.InDelta(t, 50, cfg.Dedup.StrongDistanceM, 0.001)
	assert.InDelta(t, 100, cfg.Dedup.BorderlineDistanceM, 0.001)
	assert.InDelta(t, 0.6, cfg.Dedup.AddressSimilarity, 0.001)
	assert.InDelta(t, 0.5, cfg.Dedup.NameSimilarityNear, 0.001)
	assert.InDelta(t, 0.7, cfg.Dedup.NameSimilarityFar, 0.001)
	assert.InDelta(t, 0.2, cfg.Dedup.BorderlineNameFloor, 0.001)
	assert.Contains(t, cfg.Dedup.AddressStopwords, "calle")
	assert.Contains(t, cfg.Dedup.NameStopwords, "coffee")
	assert.Equal(t, "staging.db", cfg.Staging.Path)
}

func TestLoadFromYAML(t *testing.T) {
	chtmp(t)

	yaml := `
google:
  key: test-key
  rate_limit: 2
fetch:
  grid_dim: 5
  result_cap: 1000
  min_rating: 4.2
dedup:
  strong_distance_m: 40
store:
  dev_url: postgres://localhost/places_dev
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Google.Key)
	assert.InDelta(t, 2, cfg.Google.RateLimit, 0.001)
	assert.Equal(t, 5, cfg.Fetch.GridDim)
	assert.Equal(t, 1000, cfg.Fetch.ResultCap)
	assert.InDelta(t, 4.2, cfg.Fetch.MinRating, 0.001)
	assert.InDelta(t, 40, cfg.Dedup.StrongDistanceM, 0.001)
	assert.Equal(t, "postgres://localhost/places_dev", cfg.Store.DevURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset sections keep defaults.
	assert.InDelta(t, 0.6, cfg.Dedup.AddressSimilarity, 0.001)
}

func TestLoadFromEnv(t *testing.T) {
	chtmp(t)
	t.Setenv("PLACES_GOOGLE_KEY", "env-key")
	t.Setenv("PLACES_STORE_DEV_URL", "postgres://env/dev")
	t.Setenv("PLACES_STORE_PROD_URL", "postgres://env/prod")
	t.Setenv("PLACES_REFERENCE_PATH", "refs.csv")
	t.Setenv("PLACES_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Keys with no default and keys with one both take env overrides.
	assert.Equal(t, "env-key", cfg.Google.Key)
	assert.Equal(t, "postgres://env/dev", cfg.Store.DevURL)
	assert.Equal(t, "postgres://env/prod", cfg.Store.ProdURL)
	assert.Equal(t, "refs.csv", cfg.Reference.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}

	assert.Error(t, cfg.Validate("fetch"))
	assert.Error(t, cfg.Validate("publish"))
	assert.Error(t, cfg.Validate("promote"))
	assert.NoError(t, cfg.Validate("stage"))

	cfg.Google.Key = "k"
	cfg.Store.DevURL = "postgres://localhost/dev"
	cfg.Store.ProdURL = "postgres://localhost/prod"
	assert.NoError(t, cfg.Validate("fetch"))
	assert.NoError(t, cfg.Validate("publish"))
	assert.NoError(t, cfg.Validate("promote"))
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}
