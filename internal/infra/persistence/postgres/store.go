// Package postgres provides a Postgres-backed KV store that mirrors the
// in-memory semantics, with every commit applied in one SQL transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	sqldocs "unitledger/docs/schema/sql"
	"unitledger/internal/infra/persistence/txn"
	"unitledger/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ txn.Backend            = (*Backend)(nil)
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via config.
	defaultDSN = "postgres://localhost/unitledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres through the shared transactional overlay.
type Store struct {
	*txn.Store
	backend *Backend
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN)
// and ensures the kv table exists.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqldocs.Postgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure kv table: %w", err)
	}
	backend := &Backend{db: db}
	return &Store{Store: txn.NewStore(backend, engine), backend: backend}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.backend.db }

// Backend implements txn.Backend against the kv table.
type Backend struct {
	db *sql.DB
}

// Load reads one committed value.
func (b *Backend) Load(ctx context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE bucket = $1 AND key = $2`, string(bucket), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", bucket, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Apply writes the change set inside one SQL transaction.
func (b *Backend) Apply(ctx context.Context, changes []domain.Change) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		switch change.Action {
		case domain.ActionDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE bucket = $1 AND key = $2`, string(change.Bucket), change.Key); err != nil {
				return fmt.Errorf("delete %s: %w", change.Bucket, err)
			}
		default:
			value := change.After
			if value == nil {
				value = []byte{}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv (bucket, key, value) VALUES ($1, $2, $3) ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value`, string(change.Bucket), change.Key, value); err != nil {
				return fmt.Errorf("upsert %s: %w", change.Bucket, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Dump reads every row.
func (b *Backend) Dump(ctx context.Context) (domain.Snapshot, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT bucket, key, value FROM kv`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select kv: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := domain.NewSnapshot()
	for rows.Next() {
		var bucket string
		var key, value []byte
		if err := rows.Scan(&bucket, &key, &value); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan kv: %w", err)
		}
		snapshot.Add(domain.Bucket(bucket), key, value)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate kv: %w", err)
	}
	return snapshot, nil
}

// Restore truncates the table and inserts snapshot in one transaction.
func (b *Backend) Restore(ctx context.Context, snapshot domain.Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE kv`); err != nil {
		return fmt.Errorf("truncate kv: %w", err)
	}
	for bucket, entries := range snapshot.Buckets {
		for _, e := range entries {
			value := e.Value
			if value == nil {
				value = []byte{}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv (bucket, key, value) VALUES ($1, $2, $3)`, string(bucket), e.Key, value); err != nil {
				return fmt.Errorf("insert %s: %w", bucket, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close closes the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
