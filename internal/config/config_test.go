package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePoolsSplitsAndTrims(t *testing.T) {
	cfg := &Config{PoolAddressesRaw: "0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002,"}
	err := cfg.ParsePools()
	require.NoError(t, err)
	require.Len(t, cfg.PoolAddresses, 2)
	require.Equal(t, "0x0000000000000000000000000000000000000001", cfg.PoolAddresses[0].Hex())
	require.Equal(t, "0x0000000000000000000000000000000000000002", cfg.PoolAddresses[1].Hex())
}

func TestParsePoolsRejectsEmpty(t *testing.T) {
	cfg := &Config{}
	err := cfg.ParsePools()
	require.Error(t, err)
}

func TestParsePoolsRejectsInvalidAddress(t *testing.T) {
	cfg := &Config{PoolAddressesRaw: "not-an-address"}
	err := cfg.ParsePools()
	require.Error(t, err)
}

func TestExecutorKeyRejectsEmpty(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.ExecutorKey()
	require.Error(t, err)
}

func TestExecutorKeyAcceptsHexWithAndWithoutPrefix(t *testing.T) {
	const raw = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362de"

	cfg := &Config{ExecutorKeyHex: raw}
	key, err := cfg.ExecutorKey()
	require.NoError(t, err)
	require.NotNil(t, key)

	cfg2 := &Config{ExecutorKeyHex: "0x" + raw}
	key2, err := cfg2.ExecutorKey()
	require.NoError(t, err)
	require.Equal(t, key.D, key2.D)
}

func TestChainIDBig(t *testing.T) {
	cfg := &Config{ChainID: 137}
	require.Equal(t, int64(137), cfg.ChainIDBig().Int64())
}

func TestStorageConfigCarriesFields(t *testing.T) {
	cfg := &Config{DBHost: "db.internal", DBPort: 5433, DBUser: "relay", DBPassword: "s3cret", DBName: "zdoge"}
	sc := cfg.StorageConfig()
	require.Equal(t, "db.internal", sc.Host)
	require.Equal(t, 5433, sc.Port)
	require.Equal(t, "relay", sc.User)
	require.Equal(t, "zdoge", sc.Database)
	require.Equal(t, "disable", sc.SSLMode)
}
