// Package storetest holds the behavioural contract every KV backend must pass.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"unitledger/pkg/domain"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.PersistentStore

// RunContract exercises commit, rollback, overwrite, delete, and snapshot round trips.
func RunContract(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("commit is visible", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		mustTx(t, store, func(tx domain.Transaction) error {
			return tx.Put(domain.BucketUnits, []byte{0, 0, 0, 1}, []byte("dna"))
		})
		expectValue(t, store, domain.BucketUnits, []byte{0, 0, 0, 1}, []byte("dna"))
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return nil }); err != nil {
			t.Fatalf("empty transaction: %v", err)
		}
	})

	t.Run("error rolls back", func(t *testing.T) {
		store := newStore(t)
		boom := errors.New("boom")
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			if err := tx.Put(domain.BucketOwners, []byte("k"), []byte("v")); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		expectMissing(t, store, domain.BucketOwners, []byte("k"))
	})

	t.Run("overwrite and delete", func(t *testing.T) {
		store := newStore(t)
		key := []byte("owner")
		mustTx(t, store, func(tx domain.Transaction) error {
			return tx.Put(domain.BucketOwners, key, []byte("alice"))
		})
		mustTx(t, store, func(tx domain.Transaction) error {
			return tx.Put(domain.BucketOwners, key, []byte("bob"))
		})
		expectValue(t, store, domain.BucketOwners, key, []byte("bob"))
		mustTx(t, store, func(tx domain.Transaction) error {
			return tx.Delete(domain.BucketOwners, key)
		})
		expectMissing(t, store, domain.BucketOwners, key)
	})

	t.Run("buckets are disjoint", func(t *testing.T) {
		store := newStore(t)
		key := []byte{0, 0, 0, 9}
		mustTx(t, store, func(tx domain.Transaction) error {
			return tx.Put(domain.BucketParents, key, []byte("pair"))
		})
		expectMissing(t, store, domain.BucketChildren, key)
	})

	t.Run("snapshot round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		mustTx(t, store, func(tx domain.Transaction) error {
			if err := tx.Put(domain.BucketUnits, []byte{0x00, 0xff}, []byte{1, 2, 3}); err != nil {
				return err
			}
			return tx.Put(domain.BucketMates, []byte("pair"), []byte{4})
		})
		snapshot, err := store.ExportState(ctx)
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		if snapshot.Len() != 2 {
			t.Fatalf("expected 2 entries, got %d", snapshot.Len())
		}
		if err := store.ImportState(ctx, domain.NewSnapshot()); err != nil {
			t.Fatalf("import empty: %v", err)
		}
		expectMissing(t, store, domain.BucketMates, []byte("pair"))
		if err := store.ImportState(ctx, snapshot); err != nil {
			t.Fatalf("import: %v", err)
		}
		expectValue(t, store, domain.BucketUnits, []byte{0x00, 0xff}, []byte{1, 2, 3})
		expectValue(t, store, domain.BucketMates, []byte("pair"), []byte{4})
	})
}

func mustTx(t *testing.T, store domain.PersistentStore, fn func(domain.Transaction) error) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func expectValue(t *testing.T, store domain.PersistentStore, bucket domain.Bucket, key, want []byte) {
	t.Helper()
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		got, ok, err := v.Get(bucket, key)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("%s/%x missing", bucket, key)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("%s/%x = %x, want %x", bucket, key, got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func expectMissing(t *testing.T, store domain.PersistentStore, bucket domain.Bucket, key []byte) {
	t.Helper()
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok, err := v.Get(bucket, key); err != nil {
			return err
		} else if ok {
			t.Fatalf("%s/%x unexpectedly present", bucket, key)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
