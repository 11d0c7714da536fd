package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"unitledger/internal/infra/persistence/storetest"
	"unitledger/pkg/domain"
)

func TestSQLiteStoreContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) domain.PersistentStore {
		store, err := NewStore(filepath.Join(t.TempDir(), "kv.db"), nil)
		if err != nil {
			t.Fatalf("new sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Put(domain.BucketOwners, []byte{0, 0, 0, 0}, []byte("alice"))
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload sqlite store: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	err = reloaded.View(ctx, func(v domain.TransactionView) error {
		value, ok, err := v.Get(domain.BucketOwners, []byte{0, 0, 0, 0})
		if err != nil {
			return err
		}
		if !ok || string(value) != "alice" {
			t.Fatalf("expected persisted owner, got %q ok=%v", value, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if reloaded.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reloaded.Path())
	}
	if reloaded.DB() == nil {
		t.Fatalf("expected db handle")
	}
}

func TestSQLiteStoreApplyErrorKeepsState(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "kv.db"), nil)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	_ = store.DB().Close()
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.Put(domain.BucketUnits, []byte("k"), []byte("v"))
	})
	if err == nil {
		t.Fatalf("expected error on closed database")
	}
}
