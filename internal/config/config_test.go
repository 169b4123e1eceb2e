package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaultsLoadAndValidate(t *testing.T) {
	cfg, err := Load(defaultViper())
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Equal(t, 4, cfg.Pool.Workers)
	assert.Equal(t, "round_robin", cfg.Pool.Dispatch)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Watch.Enabled)
	assert.True(t, cfg.Development.HotReload)
}

func TestInvalidPortRejected(t *testing.T) {
	v := defaultViper()
	v.Set("server.port", 0)
	_, err := Load(v)
	assert.ErrorContains(t, err, "server.port")
}

func TestUnknownDispatchRejected(t *testing.T) {
	v := defaultViper()
	v.Set("pool.dispatch", "random")
	_, err := Load(v)
	assert.ErrorContains(t, err, "pool.dispatch")
}

func TestZeroWorkersRejected(t *testing.T) {
	v := defaultViper()
	v.Set("pool.workers", 0)
	_, err := Load(v)
	assert.ErrorContains(t, err, "pool.workers")
}

func TestEmptyPathsRejected(t *testing.T) {
	v := defaultViper()
	v.Set("paths.components", "")
	_, err := Load(v)
	assert.ErrorContains(t, err, "paths.components")
}

func TestOverridesApply(t *testing.T) {
	v := defaultViper()
	v.Set("server.port", 3000)
	v.Set("pool.dispatch", "least_busy")
	v.Set("log.format", "json")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "least_busy", cfg.Pool.Dispatch)
}
