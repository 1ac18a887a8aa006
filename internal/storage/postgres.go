// Package storage implements the PostgreSQL-backed persistence layer:
// merkle tree nodes, the historical-root ring, nullifiers, commitment
// metadata, and the transfer-memo log, in tables shared by all pools and
// scoped per pool by a pool_address column (spec.md §4.2, §4.3). Grounded on the teacher's internal/storage/postgres.go
// connection-pool and query conventions, retargeted from its
// block/transaction schema to the shielded-pool schema this system
// needs.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notfartdev/zdoge-sub003/internal/merkle"
	"github.com/notfartdev/zdoge-sub003/internal/pool"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDBConnection = errors.New("database connection error")
)

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "zdoge",
		Password: "",
		Database: "zdoge_sub003",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// PostgresStore implements persistent storage for a pool's merkle tree,
// nullifier set, commitment metadata, and memo log using PostgreSQL.
// One PostgresStore instance backs one pool address.
type PostgresStore struct {
	pool    *pgxpool.Pool
	address types.Address
}

// NewPostgresStore opens a connection pool and wraps it for the given
// pool address. All queries below scope by pool_address so a single
// database can back multiple deployed pools.
func NewPostgresStore(ctx context.Context, cfg *Config, poolAddress types.Address) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pgxPool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pgxPool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &PostgresStore{pool: pgxPool, address: poolAddress}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ============================================
// merkle.Store
// ============================================

var _ merkle.Store = (*PostgresStore)(nil)

func (s *PostgresStore) GetNode(ctx context.Context, level int, index uint64) (types.Hash, bool, error) {
	var hashBytes []byte
	err := s.pool.QueryRow(ctx,
		`SELECT hash FROM tree_nodes WHERE pool_address = $1 AND level = $2 AND idx = $3`,
		s.address[:], level, index,
	).Scan(&hashBytes)
	if err == pgx.ErrNoRows {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("get tree node: %w", err)
	}
	return types.HashFromBytes(hashBytes), true, nil
}

func (s *PostgresStore) SetNode(ctx context.Context, level int, index uint64, hash types.Hash) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tree_nodes (pool_address, level, idx, hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pool_address, level, idx) DO UPDATE SET hash = $4
	`, s.address[:], level, index, hash[:])
	if err != nil {
		return fmt.Errorf("set tree node: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSize(ctx context.Context) (uint64, error) {
	var size int64
	err := s.pool.QueryRow(ctx,
		`SELECT size FROM pool_sync WHERE pool_address = $1`, s.address[:],
	).Scan(&size)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get tree size: %w", err)
	}
	return uint64(size), nil
}

func (s *PostgresStore) SetSize(ctx context.Context, size uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_sync (pool_address, size) VALUES ($1, $2)
		ON CONFLICT (pool_address) DO UPDATE SET size = $2
	`, s.address[:], int64(size))
	if err != nil {
		return fmt.Errorf("set tree size: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoot(ctx context.Context) (types.Hash, error) {
	var rootBytes []byte
	err := s.pool.QueryRow(ctx,
		`SELECT root FROM pool_sync WHERE pool_address = $1`, s.address[:],
	).Scan(&rootBytes)
	if err == pgx.ErrNoRows {
		return types.Hash{}, nil
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("get root: %w", err)
	}
	return types.HashFromBytes(rootBytes), nil
}

func (s *PostgresStore) SetRoot(ctx context.Context, root types.Hash) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_sync (pool_address, root) VALUES ($1, $2)
		ON CONFLICT (pool_address) DO UPDATE SET root = $2
	`, s.address[:], root[:])
	if err != nil {
		return fmt.Errorf("set root: %w", err)
	}
	return nil
}

func (s *PostgresStore) HistoricalRoots(ctx context.Context) ([]types.Hash, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT root FROM historical_roots
		WHERE pool_address = $1 ORDER BY seq ASC
	`, s.address[:])
	if err != nil {
		return nil, fmt.Errorf("list historical roots: %w", err)
	}
	defer rows.Close()

	var roots []types.Hash
	for rows.Next() {
		var rootBytes []byte
		if err := rows.Scan(&rootBytes); err != nil {
			return nil, err
		}
		roots = append(roots, types.HashFromBytes(rootBytes))
	}
	return roots, rows.Err()
}

func (s *PostgresStore) PushHistoricalRoot(ctx context.Context, root types.Hash) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var nextSeq int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM historical_roots WHERE pool_address = $1
	`, s.address[:]).Scan(&nextSeq); err != nil {
		return fmt.Errorf("next root seq: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO historical_roots (pool_address, seq, root) VALUES ($1, $2, $3)
	`, s.address[:], nextSeq, root[:]); err != nil {
		return fmt.Errorf("insert historical root: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM historical_roots
		WHERE pool_address = $1 AND seq <= $2 - $3
	`, s.address[:], nextSeq, merkle.HistorySize); err != nil {
		return fmt.Errorf("evict historical roots: %w", err)
	}

	return tx.Commit(ctx)
}

// ============================================
// pool.NullifierStore
// ============================================

var _ pool.NullifierStore = (*PostgresStore)(nil)

func (s *PostgresStore) HasNullifier(ctx context.Context, nullifier types.Hash) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM nullifiers WHERE pool_address = $1 AND nullifier = $2)
	`, s.address[:], nullifier[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check nullifier: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) AddNullifier(ctx context.Context, nullifier types.Hash, txHash types.Hash, blockHeight uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nullifiers (pool_address, nullifier, tx_hash, block_height)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pool_address, nullifier) DO NOTHING
	`, s.address[:], nullifier[:], txHash[:], int64(blockHeight))
	if err != nil {
		return fmt.Errorf("insert nullifier: %w", err)
	}
	return nil
}

// ============================================
// Commitment metadata
// ============================================

// SaveCommitment persists a commitment's metadata in the shape
// pool.State keeps in memory. pool.State does not call it, and nothing
// reloads pool.State's commitment map from this table on restart.
func (s *PostgresStore) SaveCommitment(ctx context.Context, commitment types.Hash, meta types.CommitmentMeta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commitments (
			pool_address, commitment, leaf_index, token, amount,
			timestamp, block_number, tx_hash, kind
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pool_address, commitment) DO NOTHING
	`,
		s.address[:], commitment[:], int64(meta.LeafIndex), meta.Token[:], meta.Amount,
		int64(meta.Timestamp), int64(meta.BlockNumber), meta.TxHash[:], int(meta.Kind),
	)
	if err != nil {
		return fmt.Errorf("save commitment: %w", err)
	}
	return nil
}

// GetCommitment loads a commitment's persisted metadata.
func (s *PostgresStore) GetCommitment(ctx context.Context, commitment types.Hash) (types.CommitmentMeta, error) {
	var meta types.CommitmentMeta
	var leafIndex, blockNumber, timestamp int64
	var kind int
	var token, txHash []byte

	err := s.pool.QueryRow(ctx, `
		SELECT leaf_index, token, amount, timestamp, block_number, tx_hash, kind
		FROM commitments WHERE pool_address = $1 AND commitment = $2
	`, s.address[:], commitment[:]).Scan(
		&leafIndex, &token, &meta.Amount, &timestamp, &blockNumber, &txHash, &kind,
	)
	if err == pgx.ErrNoRows {
		return types.CommitmentMeta{}, ErrNotFound
	}
	if err != nil {
		return types.CommitmentMeta{}, fmt.Errorf("get commitment: %w", err)
	}

	meta.LeafIndex = uint64(leafIndex)
	meta.Timestamp = uint64(timestamp)
	meta.BlockNumber = uint64(blockNumber)
	meta.Kind = types.CommitmentKind(kind)
	meta.Token = types.AddressFromBytes(token)
	meta.TxHash = types.HashFromBytes(txHash)
	return meta, nil
}

// ============================================
// Memo log
// ============================================

// SaveMemo persists one transfer/swap memo entry.
func (s *PostgresStore) SaveMemo(ctx context.Context, m types.TransferMemo) error {
	outputs := make([][]byte, len(m.Outputs))
	for i, o := range m.Outputs {
		outputs[i] = o[:]
	}
	leafIndices := make([]int64, len(m.LeafIndices))
	for i, idx := range m.LeafIndices {
		leafIndices[i] = int64(idx)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO memos (
			pool_address, nullifier_hash, outputs, memos, leaf_indices, timestamp, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pool_address, nullifier_hash) DO NOTHING
	`, s.address[:], m.NullifierHash[:], outputs, m.Memos, leafIndices, int64(m.Timestamp), m.TxHash[:])
	if err != nil {
		return fmt.Errorf("save memo: %w", err)
	}
	return nil
}

// ListMemosSince returns memos with timestamp >= since, ordered by
// (timestamp asc, insertion order) — the same contract as pool.State's
// in-memory GetMemos. The HTTP API does not call it; it serves memos
// from pool.State only.
func (s *PostgresStore) ListMemosSince(ctx context.Context, since uint64) ([]types.TransferMemo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT nullifier_hash, outputs, memos, leaf_indices, timestamp, tx_hash
		FROM memos WHERE pool_address = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, id ASC
	`, s.address[:], since)
	if err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	defer rows.Close()

	var out []types.TransferMemo
	for rows.Next() {
		var m types.TransferMemo
		var nullifierHash, txHash []byte
		var outputs [][]byte
		var memos [][]byte
		var leafIndices []int64
		var timestamp int64

		if err := rows.Scan(&nullifierHash, &outputs, &memos, &leafIndices, &timestamp, &txHash); err != nil {
			return nil, err
		}

		m.NullifierHash = types.HashFromBytes(nullifierHash)
		m.Timestamp = uint64(timestamp)
		m.TxHash = types.HashFromBytes(txHash)
		m.Memos = memos

		m.Outputs = make([]types.Hash, len(outputs))
		for i, o := range outputs {
			m.Outputs[i] = types.HashFromBytes(o)
		}
		m.LeafIndices = make([]uint64, len(leafIndices))
		for i, idx := range leafIndices {
			m.LeafIndices[i] = uint64(idx)
		}

		out = append(out, m)
	}
	return out, rows.Err()
}

// LastSyncBlock and SetLastSyncBlock persist the indexer's resume point
// (spec.md §5).
func (s *PostgresStore) LastSyncBlock(ctx context.Context) (uint64, error) {
	var height int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_sync_block FROM pool_sync WHERE pool_address = $1`, s.address[:],
	).Scan(&height)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last sync block: %w", err)
	}
	return uint64(height), nil
}

func (s *PostgresStore) SetLastSyncBlock(ctx context.Context, height uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_sync (pool_address, last_sync_block) VALUES ($1, $2)
		ON CONFLICT (pool_address) DO UPDATE SET last_sync_block = $2
	`, s.address[:], int64(height))
	if err != nil {
		return fmt.Errorf("set last sync block: %w", err)
	}
	return nil
}

