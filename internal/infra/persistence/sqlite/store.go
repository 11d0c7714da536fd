// Package sqlite provides a SQLite-backed KV store using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqldocs "unitledger/docs/schema/sql"
	"unitledger/internal/infra/persistence/txn"
	"unitledger/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ txn.Backend            = (*Backend)(nil)
)

const defaultPath = "unitledger.db"

// Store persists every bucket in a single SQLite table keyed by (bucket, key).
type Store struct {
	*txn.Store
	backend *Backend
	path    string
}

// NewStore opens (or creates) the database at path and ensures the kv table exists.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps the file lock simple; transactions are serialized above us anyway
	db.SetMaxOpenConns(1)
	backend, err := NewBackend(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: txn.NewStore(backend, engine), backend: backend, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.backend.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Backend implements txn.Backend on a database/sql handle.
type Backend struct {
	db *sql.DB
}

// NewBackend ensures the kv table exists on db.
func NewBackend(ctx context.Context, db *sql.DB) (*Backend, error) {
	if _, err := db.ExecContext(ctx, sqldocs.SQLite); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &Backend{db: db}, nil
}

// Load reads one committed value.
func (b *Backend) Load(ctx context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE bucket = ? AND key = ?`, string(bucket), key).Scan(&value)
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
func (b *Backend) Apply(ctx context.Context, changes []domain.Change) (retErr error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		switch change.Action {
		case domain.ActionDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, string(change.Bucket), change.Key); err != nil {
				return fmt.Errorf("delete %s: %w", change.Bucket, err)
			}
		default:
			value := change.After
			if value == nil {
				value = []byte{}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv(bucket, key, value) VALUES(?, ?, ?) ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value`, string(change.Bucket), change.Key, value); err != nil {
				return fmt.Errorf("upsert %s: %w", change.Bucket, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Dump reads the whole table.
func (b *Backend) Dump(ctx context.Context) (domain.Snapshot, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT bucket, key, value FROM kv`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select kv: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := domain.NewSnapshot()
	for rows.Next() {
		var (
			bucket     string
			key, value []byte
		)
		if err := rows.Scan(&bucket, &key, &value); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		snapshot.Add(domain.Bucket(bucket), key, value)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("rows: %w", err)
	}
	return snapshot, nil
}

// Restore truncates the table and inserts snapshot in one transaction.
func (b *Backend) Restore(ctx context.Context, snapshot domain.Snapshot) (retErr error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear kv: %w", err)
	}
	for bucket, entries := range snapshot.Buckets {
		for _, e := range entries {
			value := e.Value
			if value == nil {
				value = []byte{}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv(bucket, key, value) VALUES(?, ?, ?)`, string(bucket), e.Key, value); err != nil {
				return fmt.Errorf("insert %s: %w", bucket, err)
			}
		}
	}
	return tx.Commit()
}

// Close closes the database handle.
func (b *Backend) Close() error { return b.db.Close() }
