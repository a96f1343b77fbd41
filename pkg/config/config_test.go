package config_test

import (
	"testing"

	"github.com/Mindburn-Labs/pawl/pkg/config"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PAWL_PORT", "PAWL_LOG_LEVEL", "PAWL_DATA_DIR", "PAWL_LEDGER_BACKEND",
		"PAWL_LEDGER_PATH", "PAWL_DATABASE_URL", "PAWL_GENESIS",
		"PAWL_REGULATOR_QUORUM", "PAWL_ROH_CEILING",
		"PAWL_ALLOW_NEUROMORPH_REVERSAL", "PAWL_REDIS_ADDR",
		"PAWL_ORDER_SECRET", "PAWL_ARCHIVE_TYPE", "PAWL_PROFILES_DIR",
		"PAWL_JURISDICTION", "PAWL_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, config.BackendJSONL, cfg.LedgerBackend)
	assert.Equal(t, "data/ledger.jsonl", cfg.LedgerPath)
	assert.Equal(t, ledger.DefaultGenesis, cfg.Genesis)
	assert.Equal(t, 2, cfg.RegulatorQuorum)
	assert.InDelta(t, 0.30, cfg.RoHCeiling, 1e-9)
	assert.False(t, cfg.AllowNeuromorphReversal, "downgrades are opt-in, never default")
	assert.Equal(t, "fs", cfg.ArchiveType)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAWL_PORT", "9090")
	t.Setenv("PAWL_LEDGER_BACKEND", "postgres")
	t.Setenv("PAWL_DATABASE_URL", "postgres://pawl@db:5432/pawl?sslmode=verify-full")
	t.Setenv("PAWL_GENESIS", "0xTEST-GENESIS")
	t.Setenv("PAWL_REGULATOR_QUORUM", "3")
	t.Setenv("PAWL_ROH_CEILING", "0.25")
	t.Setenv("PAWL_ALLOW_NEUROMORPH_REVERSAL", "true")
	t.Setenv("PAWL_REDIS_ADDR", "redis:6379")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, config.BackendPostgres, cfg.LedgerBackend)
	assert.Equal(t, "0xTEST-GENESIS", cfg.Genesis)
	assert.Equal(t, 3, cfg.RegulatorQuorum)
	assert.InDelta(t, 0.25, cfg.RoHCeiling, 1e-9)
	assert.True(t, cfg.AllowNeuromorphReversal)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"quorum not a number", "PAWL_REGULATOR_QUORUM", "two"},
		{"quorum negative", "PAWL_REGULATOR_QUORUM", "-1"},
		{"ceiling not a number", "PAWL_ROH_CEILING", "high"},
		{"ceiling out of range", "PAWL_ROH_CEILING", "1.5"},
		{"ceiling zero", "PAWL_ROH_CEILING", "0"},
		{"flag not a bool", "PAWL_ALLOW_NEUROMORPH_REVERSAL", "yes please"},
		{"unknown backend", "PAWL_LEDGER_BACKEND", "tape"},
		{"postgres without dsn", "PAWL_LEDGER_BACKEND", "postgres"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := config.Load()
			require.Error(t, err)
		})
	}
}
