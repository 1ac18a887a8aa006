// Package config assembles the daemons' runtime configuration from
// flags and environment variables (spec.md §9: executor key material,
// chain RPC endpoints, pool addresses, and the minimum-fee floor are
// ambient singletons in the distilled design; this package replaces
// them with an explicit, constructed context). Grounded on the
// teacher's cmd/ccoind/main.go parseFlags/Config shape, generalized
// from a P2P/mining node's flags to the indexer/relay daemons' flags.
package config

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/notfartdev/zdoge-sub003/internal/storage"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// Config holds everything either daemon needs: chain connectivity,
// database connectivity, the set of pools to track, and (relayd only)
// the executor's signing key.
type Config struct {
	// Chain
	RPCHTTPEndpoint string
	RPCWSEndpoint   string
	ChainID         int64

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Pools
	PoolAddressesRaw string // comma-separated, set by the -pools flag; call ParsePools to populate PoolAddresses
	PoolAddresses    []types.Address

	// Relay (relayd only)
	ExecutorKeyHex string

	// Logging
	LogLevel string

	// Indexer
	BacklogThreshold uint64

	// HTTP API (both daemons)
	ListenAddr string
}

// Flags returns the flag.FlagSet shared by both daemons, writing
// results into cfg. Callers invoke flag.Parse() themselves so they can
// add daemon-specific flags to the same set first.
func Flags(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&cfg.RPCHTTPEndpoint, "rpc-http", envOr("CHAIN_RPC_HTTP", "http://127.0.0.1:8545"), "chain JSON-RPC HTTP endpoint")
	fs.StringVar(&cfg.RPCWSEndpoint, "rpc-ws", envOr("CHAIN_RPC_WS", ""), "chain JSON-RPC WebSocket endpoint (empty disables live indexing)")
	fs.Int64Var(&cfg.ChainID, "chain-id", envOrInt64("CHAIN_ID", 1), "EVM chain id, for transaction signing")

	fs.StringVar(&cfg.DBHost, "db-host", envOr("DB_HOST", "localhost"), "PostgreSQL host")
	fs.IntVar(&cfg.DBPort, "db-port", int(envOrInt64("DB_PORT", 5432)), "PostgreSQL port")
	fs.StringVar(&cfg.DBUser, "db-user", envOr("DB_USER", "zdoge"), "PostgreSQL user")
	fs.StringVar(&cfg.DBPassword, "db-password", envOr("DB_PASSWORD", ""), "PostgreSQL password")
	fs.StringVar(&cfg.DBName, "db-name", envOr("DB_NAME", "zdoge_sub003"), "PostgreSQL database name")

	fs.StringVar(&cfg.PoolAddressesRaw, "pools", envOr("POOL_ADDRESSES", ""), "comma-separated pool contract addresses")
	fs.StringVar(&cfg.ExecutorKeyHex, "executor-key", envOr("EXECUTOR_PRIVATE_KEY", ""), "relayer signing key, hex-encoded (relayd only)")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.Uint64Var(&cfg.BacklogThreshold, "backlog-threshold", uint64(envOrInt64("BACKLOG_THRESHOLD", 5000)), "block backlog beyond which the indexer stays in catch-up mode")
	fs.StringVar(&cfg.ListenAddr, "listen", envOr("LISTEN_ADDR", "127.0.0.1:8090"), "HTTP API listen address")

	return fs
}

// ParsePools splits the comma-separated -pools flag into PoolAddresses.
// Call after flag.Parse().
func (c *Config) ParsePools() error {
	if c.PoolAddressesRaw == "" {
		return fmt.Errorf("config: at least one pool address is required (-pools or POOL_ADDRESSES)")
	}
	for _, raw := range strings.Split(c.PoolAddressesRaw, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := types.AddressFromHex(raw)
		if err != nil {
			return fmt.Errorf("config: invalid pool address %q: %w", raw, err)
		}
		c.PoolAddresses = append(c.PoolAddresses, addr)
	}
	if len(c.PoolAddresses) == 0 {
		return fmt.Errorf("config: -pools produced no valid addresses")
	}
	return nil
}

// ExecutorKey decodes ExecutorKeyHex into a signing key. Required for
// relayd, unused by indexerd.
func (c *Config) ExecutorKey() (*ecdsa.PrivateKey, error) {
	hexKey := strings.TrimPrefix(c.ExecutorKeyHex, "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("config: no executor key configured (-executor-key or EXECUTOR_PRIVATE_KEY)")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("config: invalid executor key: %w", err)
	}
	return key, nil
}

// ChainIDBig returns ChainID as a *big.Int, for transaction signing.
func (c *Config) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// StorageConfig builds the internal/storage.Config this daemon's
// database connection uses.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Database: c.DBName,
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
