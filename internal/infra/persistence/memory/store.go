// Package memory provides an in-memory implementation of the KV persistence
// store used for tests and ephemeral environments.
package memory

import (
	"bytes"
	"context"
	"sync"

	"unitledger/internal/infra/persistence/txn"
	"unitledger/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ txn.Backend            = (*Backend)(nil)
)

// Store provides an in-memory transactional store.
type Store struct {
	*txn.Store
	backend *Backend
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	backend := NewBackend()
	return &Store{Store: txn.NewStore(backend, engine), backend: backend}
}

// Len returns the number of committed keys in bucket.
func (s *Store) Len(bucket domain.Bucket) int {
	return s.backend.Len(bucket)
}

// Backend keeps committed buckets in process memory.
type Backend struct {
	mu      sync.RWMutex
	buckets map[domain.Bucket]map[string][]byte
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{buckets: make(map[domain.Bucket]map[string][]byte)}
}

// Load returns a copy of the committed value.
func (b *Backend) Load(_ context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.buckets[bucket][string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

// Apply lands every change under a single lock.
func (b *Backend) Apply(_ context.Context, changes []domain.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, change := range changes {
		switch change.Action {
		case domain.ActionDelete:
			delete(b.buckets[change.Bucket], string(change.Key))
		default:
			entries, ok := b.buckets[change.Bucket]
			if !ok {
				entries = make(map[string][]byte)
				b.buckets[change.Bucket] = entries
			}
			entries[string(change.Key)] = bytes.Clone(change.After)
		}
	}
	return nil
}

// Dump clones every bucket into a snapshot.
func (b *Backend) Dump(_ context.Context) (domain.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := domain.NewSnapshot()
	for bucket, entries := range b.buckets {
		for key, value := range entries {
			snapshot.Add(bucket, []byte(key), value)
		}
	}
	return snapshot, nil
}

// Restore replaces the contents with snapshot.
func (b *Backend) Restore(_ context.Context, snapshot domain.Snapshot) error {
	buckets := make(map[domain.Bucket]map[string][]byte, len(snapshot.Buckets))
	for bucket, entries := range snapshot.Buckets {
		m := make(map[string][]byte, len(entries))
		for _, e := range entries {
			m[string(e.Key)] = bytes.Clone(e.Value)
		}
		buckets[bucket] = m
	}
	b.mu.Lock()
	b.buckets = buckets
	b.mu.Unlock()
	return nil
}

// Len returns the number of keys in bucket.
func (b *Backend) Len(bucket domain.Bucket) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buckets[bucket])
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }
