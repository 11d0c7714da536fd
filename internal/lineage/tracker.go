// Package lineage records parent pairs, child entries, and mate markers
// produced by breeding. Every relation is a fixed-arity KV entry; nothing is
// ever rewritten once recorded.
package lineage

import (
	"fmt"

	"unitledger/internal/kv"
	"unitledger/pkg/domain"
)

type edge = kv.Pair[domain.UnitID, domain.UnitID]

func edgeOf(a, b domain.UnitID) edge { return kv.PairOf(a, b) }

// Tracker reads and writes lineage through a transaction.
type Tracker struct {
	parents  kv.Map[domain.UnitID, domain.ParentPair]
	children kv.Map[edge, domain.UnitID]
	mates    kv.Map[edge, domain.UnitID]
}

// NewTracker builds a tracker over the lineage buckets.
func NewTracker() *Tracker {
	ids := kv.Uint32[domain.UnitID]{}
	edges := kv.Tuple[domain.UnitID, domain.UnitID]{First: ids, Second: ids}
	return &Tracker{
		parents:  kv.NewMap[domain.UnitID, domain.ParentPair](domain.BucketParents, ids, kv.JSON[domain.ParentPair]{}),
		children: kv.NewMap[edge, domain.UnitID](domain.BucketChildren, edges, ids),
		mates:    kv.NewMap[edge, domain.UnitID](domain.BucketMates, edges, ids),
	}
}

// ParentsMap exposes the parent-pair map for rules that decode change sets.
func (t *Tracker) ParentsMap() kv.Map[domain.UnitID, domain.ParentPair] { return t.parents }

// Record stores the lineage of a freshly bred child: its parent pair, one
// child entry under each parent, and the mate marker keyed by the pair as
// passed with parent A as the representative.
func (t *Tracker) Record(tx domain.Transaction, child domain.UnitID, pair domain.ParentPair) error {
	exists, err := t.parents.Has(tx, child)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("unit %d: %w", child, domain.ErrParentsAlreadySet)
	}
	if err := t.parents.Put(tx, child, pair); err != nil {
		return err
	}
	if err := t.children.Put(tx, edgeOf(pair.A, child), child); err != nil {
		return err
	}
	if err := t.children.Put(tx, edgeOf(pair.B, child), child); err != nil {
		return err
	}
	// a repeat pairing in reverse order reuses the marker that already exists
	if _, ok, err := t.MateMarker(tx, pair.A, pair.B); err != nil || ok {
		return err
	}
	return t.mates.Put(tx, edgeOf(pair.A, pair.B), pair.A)
}

// Parents returns the parent pair of child; ok is false for created units.
func (t *Tracker) Parents(view domain.TransactionView, child domain.UnitID) (domain.ParentPair, bool, error) {
	return t.parents.Get(view, child)
}

// HasChild reports whether child was bred from parent.
func (t *Tracker) HasChild(view domain.TransactionView, parent, child domain.UnitID) (bool, error) {
	return t.children.Has(view, edgeOf(parent, child))
}

// MateMarker returns the representative stored for the unordered pair {a, b}.
func (t *Tracker) MateMarker(view domain.TransactionView, a, b domain.UnitID) (domain.UnitID, bool, error) {
	rep, ok, err := t.mates.Get(view, edgeOf(a, b))
	if err != nil || ok {
		return rep, ok, err
	}
	return t.mates.Get(view, edgeOf(b, a))
}

// AreMates reports whether a and b have been bred together, in either order.
func (t *Tracker) AreMates(view domain.TransactionView, a, b domain.UnitID) (bool, error) {
	_, ok, err := t.MateMarker(view, a, b)
	return ok, err
}
