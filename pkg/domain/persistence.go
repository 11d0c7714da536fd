package domain

import (
	"bytes"
	"context"
	"sort"
)

// Bucket names a disjoint key namespace inside the single KV store.
type Bucket string

// Buckets owned by the registry components.
const (
	// BucketUnits maps a unit id to its DNA.
	BucketUnits Bucket = "units"
	// BucketOwners maps a unit id to its owner.
	BucketOwners Bucket = "unit_owners"
	// BucketCounter holds the next unit id.
	BucketCounter Bucket = "unit_counter"
	// BucketOwnedUnits holds the per-owner linked list nodes.
	BucketOwnedUnits Bucket = "owned_units"
	// BucketParents maps a child id to its parent pair.
	BucketParents Bucket = "unit_parents"
	// BucketChildren holds (parent, child) membership entries.
	BucketChildren Bucket = "unit_children"
	// BucketMates holds (parent, parent) mate markers.
	BucketMates Bucket = "unit_mates"
)

// AllBuckets lists every bucket written by the registry, in a stable order.
var AllBuckets = []Bucket{
	BucketUnits,
	BucketOwners,
	BucketCounter,
	BucketOwnedUnits,
	BucketParents,
	BucketChildren,
	BucketMates,
}

// Action identifies the kind of mutation captured in a Change.
type Action string

// Change actions staged by a transaction.
const (
	// ActionPut inserts or overwrites a key.
	ActionPut Action = "put"
	// ActionDelete removes a key.
	ActionDelete Action = "delete"
)

// Change is one staged mutation. Before is nil when the key did not exist in
// the committed state; After is nil for deletes.
type Change struct {
	Bucket Bucket
	Key    []byte
	Action Action
	Before []byte
	After  []byte
}

// TransactionView provides read-only point access to the store.
type TransactionView interface {
	Get(bucket Bucket, key []byte) ([]byte, bool, error)
}

// Transaction exposes the point operations a persistence implementation must
// support within an atomic scope. Writes are visible to later reads in the same
// transaction and to nothing else until commit.
type Transaction interface {
	TransactionView
	Put(bucket Bucket, key, value []byte) error
	Delete(bucket Bucket, key []byte) error
	Snapshot() TransactionView
	Changes() []Change
}

// PersistentStore is the abstraction over durable backends used by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState(ctx context.Context) (Snapshot, error)
	ImportState(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Entry is a raw key/value pair inside a snapshot.
type Entry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// Snapshot captures the full contents of a store for backup and restore.
type Snapshot struct {
	Buckets map[Bucket][]Entry `json:"buckets"`
}

// NewSnapshot returns an empty snapshot ready for Add.
func NewSnapshot() Snapshot {
	return Snapshot{Buckets: make(map[Bucket][]Entry)}
}

// Add appends a copy of the pair to the bucket.
func (s *Snapshot) Add(bucket Bucket, key, value []byte) {
	if s.Buckets == nil {
		s.Buckets = make(map[Bucket][]Entry)
	}
	s.Buckets[bucket] = append(s.Buckets[bucket], Entry{Key: bytes.Clone(key), Value: bytes.Clone(value)})
}

// Sort orders the entries of every bucket by key so snapshots compare deterministically.
func (s Snapshot) Sort() {
	for _, entries := range s.Buckets {
		sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })
	}
}

// Len returns the total number of entries.
func (s Snapshot) Len() int {
	n := 0
	for _, entries := range s.Buckets {
		n += len(entries)
	}
	return n
}
