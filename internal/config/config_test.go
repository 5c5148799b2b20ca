package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret, "expected empty AUTH_SECRET when unset")
}

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "PORT")
	unsetenv(t, "CHECKOUT_TIMEOUT_SECONDS")
	unsetenv(t, "PHONE_REGION")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 15*time.Second, cfg.CheckoutTimeout())
	assert.Equal(t, "IN", cfg.PhoneRegion)
}

func TestLoadClampsNonPositiveDurations(t *testing.T) {
	t.Setenv("CHECKOUT_TIMEOUT_SECONDS", "0")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("SUGGESTION_CACHE_TTL_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.CheckoutTimeout())
	assert.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, 20*time.Second, cfg.SuggestionCacheTTL())
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	assert.Error(t, err)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Mars/Olympus"}.Location())
}
