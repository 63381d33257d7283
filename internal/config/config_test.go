// internal/config/config_test.go
package config

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", MinSecretLen))
	t.Setenv("GAME_SERVER_TOKEN", "server-token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 300*time.Second, cfg.PendingLobbyTTL)
	assert.Equal(t, 2*time.Hour, cfg.ActiveLobbyTTL)
	assert.Equal(t, time.Minute, cfg.ClosedLobbyTTL)
	assert.Equal(t, 5, cfg.MaxPendingPerIP)
	assert.Equal(t, 8081, cfg.GameServerPort)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadTrustedProxies(t *testing.T) {
	setRequired(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1/32")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.1/32"),
	}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "not-a-cidr")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LOBBY_MAX_PER_IP", "2")
	t.Setenv("LOBBY_ACTIVE_TTL", "30m")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxPendingPerIP)
	assert.Equal(t, 30*time.Minute, cfg.ActiveLobbyTTL)

	logger := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GAME_SERVER_TOKEN", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsShortSecretAndBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "too-short")
	t.Setenv("LOBBY_MAX_PER_IP", "0")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "LOBBY_MAX_PER_IP")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}
