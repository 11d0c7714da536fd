package linkedlist

import (
	"context"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"unitledger/internal/infra/persistence/memory"
	"unitledger/pkg/domain"
)

// TestProperty_ListMatchesModel drives random append/remove sequences over a
// few collections and compares every list with a slice model after each step.
func TestProperty_ListMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := memory.NewStore(nil)
		l := newTestList()
		ctx := context.Background()
		accounts := []domain.AccountID{"alice", "bob", "carol"}
		model := map[domain.AccountID][]domain.UnitID{}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			account := rapid.SampledFrom(accounts).Draw(rt, "account")
			id := domain.UnitID(rapid.IntRange(1, 12).Draw(rt, "id"))
			present := slices.Contains(model[account], id)

			_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				if present {
					return l.Remove(tx, account, id)
				}
				return l.Append(tx, account, id)
			})
			if err != nil {
				rt.Fatalf("step %d: %v", i, err)
			}
			if present {
				model[account] = slices.DeleteFunc(model[account], func(v domain.UnitID) bool { return v == id })
			} else {
				model[account] = append(model[account], id)
			}

			for _, acc := range accounts {
				checkAgainstModel(rt, store, l, acc, model[acc])
			}
		}

		for _, acc := range accounts {
			for _, id := range slices.Clone(model[acc]) {
				if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
					return l.Remove(tx, acc, id)
				}); err != nil {
					rt.Fatalf("drain: %v", err)
				}
			}
		}
		if n := store.Len(domain.BucketOwnedUnits); n != 0 {
			rt.Fatalf("expected empty bucket after draining, found %d entries", n)
		}
	})
}

func checkAgainstModel(rt *rapid.T, store domain.PersistentStore, l *testList, account domain.AccountID, want []domain.UnitID) {
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		forward, err := l.Members(v, account)
		if err != nil {
			return err
		}
		if !slices.Equal(forward, want) {
			rt.Fatalf("%s forward = %v, want %v", account, forward, want)
		}
		var back []domain.UnitID
		if err := l.WalkBackward(v, account, func(id domain.UnitID) error {
			back = append(back, id)
			return nil
		}); err != nil {
			return err
		}
		slices.Reverse(back)
		if !slices.Equal(back, want) {
			rt.Fatalf("%s backward = %v, want reversed %v", account, back, want)
		}
		for _, id := range want {
			ok, err := l.Contains(v, account, id)
			if err != nil {
				return err
			}
			if !ok {
				rt.Fatalf("%s missing member %d", account, id)
			}
		}
		h, err := l.Head(v, account)
		if err != nil {
			return err
		}
		if len(want) == 0 {
			if h.Next != nil || h.Prev != nil {
				rt.Fatalf("%s empty list has non-empty sentinel", account)
			}
			return nil
		}
		if h.Next == nil || *h.Next != want[0] || h.Prev == nil || *h.Prev != want[len(want)-1] {
			rt.Fatalf("%s sentinel does not point at first/last", account)
		}
		return nil
	})
	if err != nil {
		rt.Fatalf("view: %v", err)
	}
}
