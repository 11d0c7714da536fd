package memory

import (
	"context"
	"errors"
	"testing"

	"unitledger/pkg/domain"
)

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok, err := tx.Get(domain.BucketUnits, []byte("missing")); err != nil || ok {
			t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
		}
		if err := tx.Put(domain.BucketUnits, []byte("a"), []byte("1")); err != nil {
			return err
		}
		value, ok, err := tx.Snapshot().Get(domain.BucketUnits, []byte("a"))
		if err != nil || !ok || string(value) != "1" {
			t.Fatalf("snapshot mismatch: %q %v %v", value, ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if store.Len(domain.BucketUnits) != 1 {
		t.Fatalf("expected persisted key")
	}

	snapshot, err := store.ExportState(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := store.ImportState(ctx, domain.Snapshot{}); err != nil {
		t.Fatalf("import empty: %v", err)
	}
	if store.Len(domain.BucketUnits) != 0 {
		t.Fatalf("expected cleared state")
	}
	if err := store.ImportState(ctx, snapshot); err != nil {
		t.Fatalf("import: %v", err)
	}
	if store.Len(domain.BucketUnits) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
}

func TestStoreDiscardsWritesOnError(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Put(domain.BucketOwners, []byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if store.Len(domain.BucketOwners) != 0 {
		t.Fatalf("expected no committed writes")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.Put(domain.BucketUnits, []byte("k"), []byte("v"))
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if store.Len(domain.BucketUnits) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.TransactionView, []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	res.Merge(domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock, Message: "always"}}})
	return res, nil
}

func TestChangesTrackBeforeAndDropNoops(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Put(domain.BucketOwners, []byte("u1"), []byte("alice"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Put(domain.BucketOwners, []byte("u1"), []byte("bob")); err != nil {
			return err
		}
		if err := tx.Put(domain.BucketOwners, []byte("tmp"), []byte("x")); err != nil {
			return err
		}
		if err := tx.Delete(domain.BucketOwners, []byte("tmp")); err != nil {
			return err
		}
		changes := tx.Changes()
		if len(changes) != 1 {
			t.Fatalf("expected one effective change, got %d", len(changes))
		}
		c := changes[0]
		if c.Action != domain.ActionPut || string(c.Before) != "alice" || string(c.After) != "bob" {
			t.Fatalf("unexpected change %+v", c)
		}
		if _, ok, _ := tx.Get(domain.BucketOwners, []byte("tmp")); ok {
			t.Fatalf("deleted key visible inside transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestViewSeesCommittedStateOnly(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Put(domain.BucketCounter, []byte("next"), []byte{0, 0, 0, 7})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := store.View(ctx, func(v domain.TransactionView) error {
		value, ok, err := v.Get(domain.BucketCounter, []byte("next"))
		if err != nil || !ok || value[3] != 7 {
			t.Fatalf("unexpected view read %v %v %v", value, ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
