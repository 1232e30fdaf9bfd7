package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, "edumatrix:", cfg.Store.Namespace)
	assert.Equal(t, "edumatrix:cache:", cfg.Store.CachePrefix())
	assert.Equal(t, 5, cfg.Store.MaxRetries)
	assert.Equal(t, "sha256", cfg.Auth.PasswordScheme)
	assert.False(t, cfg.Auth.UniquePasswordHash)
	assert.Equal(t, time.Duration(0), cfg.Auth.ActiveLockTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 500, cfg.Activities.MaxEntries)
	assert.Equal(t, 64, cfg.Events.Buffer)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Redis ")
	t.Setenv("ACTIVE_LOCK_TTL", "30m")
	t.Setenv("AUTH_PASSWORD_SCHEME", "BCRYPT")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("JWT_EXPIRATION", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverRedis, cfg.Store.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Auth.ActiveLockTTL)
	assert.Equal(t, "bcrypt", cfg.Auth.PasswordScheme)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestCachePrefixWithoutNamespace(t *testing.T) {
	assert.Equal(t, "cache:", StoreConfig{}.CachePrefix())
}
