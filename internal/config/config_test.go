package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 8, cfg.PasswordMinLen)
	assert.Equal(t, BackendMySQL, cfg.Ledger())
	assert.Equal(t, "session.events", cfg.EventsQueue)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "same")
	t.Setenv("REFRESH_TOKEN_SECRET", "same")

	_, err := Load()
	assert.ErrorContains(t, err, "must differ")
}

func TestLedgerBackendOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Ledger())
	assert.Equal(t, "cache:6380", cfg.Redis.Address())
}

func TestValidateRejectsMySQLLedgerWithoutMySQLUsers(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LEDGER_BACKEND", "mysql")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "postgres")

	_, err := Load()
	assert.ErrorContains(t, err, "STORAGE_BACKEND")
}

func TestValidateAdminBootstrapPair(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_EMAIL", "admin@school.local")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ADMIN_PASSWORD", "Admin123!")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "admin@school.local", cfg.AdminEmail)
}
