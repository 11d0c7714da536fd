// Package txn implements the transactional overlay shared by every KV backend.
// Writes are staged in memory, rules run over the staged change set, and the
// backend applies the whole set atomically or not at all.
package txn

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"unitledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Backend is the point-access contract a durable engine must provide.
// Apply must land every change or none of them.
type Backend interface {
	Load(ctx context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error)
	Apply(ctx context.Context, changes []domain.Change) error
	Dump(ctx context.Context) (domain.Snapshot, error)
	Restore(ctx context.Context, snapshot domain.Snapshot) error
	Close() error
}

// Store serializes transactions over a Backend.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	engine  *domain.RulesEngine
}

// NewStore wraps backend. A nil engine is replaced with an empty one.
func NewStore(backend Backend, engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{backend: backend, engine: engine}
}

// RulesEngine exposes the configured engine so callers can register rules.
func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// Backend returns the wrapped backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// RunInTransaction executes fn against a staged overlay and commits it when fn
// succeeds and no rule blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTransaction(ctx, s.backend)
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	changes := tx.Changes()
	res, err := s.engine.Evaluate(ctx, tx.Snapshot(), changes)
	if err != nil {
		return domain.Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	if len(changes) == 0 {
		return res, nil
	}
	if err := s.backend.Apply(ctx, changes); err != nil {
		return res, fmt.Errorf("apply %d changes: %w", len(changes), err)
	}
	return res, nil
}

// View executes fn against the committed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(committedView{ctx: ctx, backend: s.backend})
}

// ExportState dumps every bucket.
func (s *Store) ExportState(ctx context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, err := s.backend.Dump(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot.Sort()
	return snapshot, nil
}

// ImportState replaces the store contents with snapshot.
func (s *Store) ImportState(ctx context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Restore(ctx, snapshot)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

type committedView struct {
	ctx     context.Context
	backend Backend
}

func (v committedView) Get(bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	value, ok, err := v.backend.Load(v.ctx, bucket, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return bytes.Clone(value), true, nil
}
