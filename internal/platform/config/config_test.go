package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, AuditSinkMemory, cfg.Audit.Sink)
	assert.Equal(t, 5*time.Second, cfg.Ledger.TickDuration)
	assert.Equal(t, uint64(7*17280), cfg.Vault.ProposalLifetimeTicks)
	assert.Equal(t, "GTREASURY", cfg.Vault.Account)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.UsesDevSigningKey())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TREASURY_SERVER_ADDR", ":9090")
	t.Setenv("TREASURY_STORAGE_BACKEND", "REDIS")
	t.Setenv("TREASURY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TREASURY_AUDIT_SINK", "kafka")
	t.Setenv("TREASURY_AUDIT_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("TREASURY_VAULT_BALANCES", "USDC=1000,XLM=50")
	t.Setenv("TREASURY_LEDGER_TICK_DURATION", "1s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
	assert.Equal(t, map[string]string{"USDC": "1000", "XLM": "50"}, cfg.Vault.Balances)
	assert.Equal(t, time.Second, cfg.Ledger.TickDuration)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("TREASURY_STORAGE_BACKEND", "postgres")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("TREASURY_STORAGE_BACKEND", "etcd")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("zero rate limit", func(t *testing.T) {
		t.Setenv("TREASURY_RATE_LIMIT_REQUESTS", "0")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("malformed balances", func(t *testing.T) {
		t.Setenv("TREASURY_VAULT_BALANCES", "USDC")
		_, err := FromEnv()
		require.Error(t, err)
	})
}
