package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POS_CLIENT_ID", "client-123")
	t.Setenv("POS_CLIENT_SECRET", "shh")
	t.Setenv("POS_REDIRECT_URI", "https://pharmacy.example.com/api/v1/pos/callback")
	t.Setenv("POS_USER_NAME", "Store Manager")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "retail.lightspeed.app", cfg.PlatformDomain)
	assert.Equal(t, "Main Register", cfg.RegisterName)
	assert.Equal(t, 10*time.Minute, cfg.StateTTL)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, TokenStoreMemory, cfg.TokenStore)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.EventsEnabled())
}

func TestLoad_MissingOAuthClient(t *testing.T) {
	t.Setenv("POS_USER_NAME", "Store Manager")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientID")
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreBackend")
}

func TestLoad_ProductionNeedsStateSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POS_STATE_SECRET")

	t.Setenv("POS_STATE_SECRET", "too-short")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32")

	t.Setenv("POS_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	_, err = Load()
	require.NoError(t, err)
}

func TestLoad_KafkaBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.EventsEnabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}
