package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-auth/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:            "test",
		Port:           "0",
		AccessSecret:   "access-secret",
		RefreshSecret:  "refresh-secret",
		Issuer:         "library-auth",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     720 * time.Hour,
		BcryptCost:     4,
		PasswordMinLen: 8,
		StorageBackend: config.BackendMemory,
		AdminEmail:     "admin@school.local",
		AdminPassword:  "Admin123!",
	}
}

func post(t *testing.T, h http.Handler, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestNewInMemoryBootstrapsAdmin(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	code, body := post(t, a.Handler(), "/auth/login", map[string]any{"email": "admin@school.local", "password": "Admin123!"})
	require.Equal(t, http.StatusOK, code)
	u, _ := body["user"].(map[string]any)
	assert.Equal(t, "admin", u["role"])

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestNewWithRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.LedgerBackend = config.BackendRedis
	cfg.Redis = config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "libauth:"}

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	code, reg := post(t, a.Handler(), "/auth/register", map[string]any{"email": "staff1@school.local", "password": "Staff123!"})
	require.Equal(t, http.StatusCreated, code)
	first, _ := reg["refresh_token"].(string)

	code, _ = post(t, a.Handler(), "/auth/refresh", map[string]any{"refresh_token": first})
	require.Equal(t, http.StatusOK, code)
	code, _ = post(t, a.Handler(), "/auth/refresh", map[string]any{"refresh_token": first})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, mr.Keys())
}

func TestNewFailsWhenRedisDown(t *testing.T) {
	cfg := memoryConfig()
	cfg.LedgerBackend = config.BackendRedis
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
