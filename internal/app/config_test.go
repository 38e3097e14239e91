package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.SearchPageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	assert.True(t, cfg.FilterPersist)
	assert.Equal(t, 720*time.Hour, cfg.FilterTTL)
	assert.Equal(t, "en-US", cfg.ExportLocale)
	assert.Equal(t, time.UTC, cfg.ExportLocation())
	assert.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SEARCH_PAGE_SIZE", "50")
	t.Setenv("SEARCH_DEBOUNCE", "150ms")
	t.Setenv("FILTER_PERSIST", "false")
	t.Setenv("EXPORT_TZ", "Europe/Berlin")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.SearchPageSize)
	assert.Equal(t, 150*time.Millisecond, cfg.SearchDebounce)
	assert.False(t, cfg.FilterPersist)
	assert.Equal(t, "Europe/Berlin", cfg.ExportLocation().String())
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("SEARCH_PAGE_SIZE", "500")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("SEARCH_PAGE_SIZE", "25")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ADMIN_API_TOKEN", "")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "admin api token")

	t.Setenv("ADMIN_API_TOKEN", "s3cret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestExportLocationFallsBack(t *testing.T) {
	cfg := &Config{ExportTimezone: "Mars/Olympus"}
	assert.Equal(t, time.UTC, cfg.ExportLocation())
	var nilCfg *Config
	assert.Equal(t, time.UTC, nilCfg.ExportLocation())
}
