package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadena-io/chainweb-indexer/internal/errs"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SYNC_BASE_URL", "https://api.chainweb.example")
	t.Setenv("SYNC_NETWORK", "mainnet01")
	t.Setenv("DATABASE_URL", "postgres://localhost/chainweb")
	t.Setenv("SYNC_OBJECT_STORE_BUCKET", "chainweb-archive")
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, uint64(defaultFetchIntervalInBlocks), cfg.FetchIntervalInBlocks)
	require.Equal(t, defaultChainCount, cfg.ChainCount)
	require.Equal(t, uint64(0), cfg.MinHeight)
}

func TestFromEnvMissingRequiredVarIsFatal(t *testing.T) {
	t.Setenv("SYNC_NETWORK", "mainnet01")
	t.Setenv("DATABASE_URL", "postgres://localhost/chainweb")
	t.Setenv("SYNC_OBJECT_STORE_BUCKET", "chainweb-archive")
	// SYNC_BASE_URL deliberately left unset.

	_, err := FromEnv()
	require.Error(t, err)
	require.Equal(t, errs.KindFatalConfig, errs.KindOf(err))
}

func TestFromEnvInvalidIntegerIsFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_MIN_HEIGHT", "not-a-number")

	_, err := FromEnv()
	require.Error(t, err)
	require.Equal(t, errs.KindFatalConfig, errs.KindOf(err))
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_MIN_HEIGHT", "100")
	t.Setenv("SYNC_FETCH_INTERVAL_IN_BLOCKS", "50")
	t.Setenv("SLEEP_INTERVAL_MS", "1000")
	t.Setenv("SYNC_CHAIN_COUNT", "2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, uint64(100), cfg.MinHeight)
	require.Equal(t, uint64(50), cfg.FetchIntervalInBlocks)
	require.Equal(t, 2, cfg.ChainCount)
}
