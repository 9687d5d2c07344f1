package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravelhq/ravel/internal/config"
	"github.com/ravelhq/ravel/internal/types"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "./ravel.db", cfg.DatabasePath)
	assert.Equal(t, config.TransportStdio, cfg.Transport)
	assert.Equal(t, "127.0.0.1", cfg.HTTPHost)
	assert.Equal(t, 8765, cfg.HTTPPort)
}

func TestLoad_DatabasePathHasNoRavelPrefix(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/custom.db")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath)
}

func TestLoad_RavelPrefixedEnvVarsOverrideDefaults(t *testing.T) {
	t.Setenv("RAVEL_HTTP_PORT", "9090")
	t.Setenv("RAVEL_SERVER_NAME", "ravel-staging")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "ravel-staging", cfg.ServerName)
}

func TestLoad_RejectsUnknownTransport(t *testing.T) {
	t.Setenv("RAVEL_TRANSPORT", "carrier-pigeon")
	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))
}
