// Package units stores unit payloads, owners, the identifier counter, and the
// per-owner collections.
package units

import (
	"fmt"

	"unitledger/internal/kv"
	"unitledger/internal/linkedlist"
	"unitledger/pkg/domain"
)

var counterKey = []byte("next")

// Store is the entity store. It holds no state of its own; every call reads
// and writes through the supplied transaction.
type Store struct {
	start  domain.UnitID
	dna    kv.Map[domain.UnitID, domain.DNA]
	owners kv.Map[domain.UnitID, domain.AccountID]
	owned  *linkedlist.List[domain.AccountID, domain.UnitID]
}

// Option configures a Store.
type Option func(*Store)

// WithStartID sets the identifier handed out while the counter is unset.
func WithStartID(id domain.UnitID) Option {
	return func(s *Store) { s.start = id }
}

// WithWalkLimit bounds collection enumeration.
func WithWalkLimit(n int) Option {
	return func(s *Store) {
		s.owned = newOwnedList(linkedlist.WithWalkLimit(n))
	}
}

func newOwnedList(opts ...linkedlist.Option) *linkedlist.List[domain.AccountID, domain.UnitID] {
	return linkedlist.New[domain.AccountID, domain.UnitID](domain.BucketOwnedUnits, kv.String[domain.AccountID]{}, kv.Uint32[domain.UnitID]{}, opts...)
}

// NewStore builds an entity store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		dna:    kv.NewMap[domain.UnitID, domain.DNA](domain.BucketUnits, kv.Uint32[domain.UnitID]{}, kv.DNA{}),
		owners: kv.NewMap[domain.UnitID, domain.AccountID](domain.BucketOwners, kv.Uint32[domain.UnitID]{}, kv.Raw[domain.AccountID]{}),
		owned:  newOwnedList(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartID returns the configured counter offset.
func (s *Store) StartID() domain.UnitID { return s.start }

// Owners exposes the owner map for rules that decode change sets.
func (s *Store) Owners() kv.Map[domain.UnitID, domain.AccountID] { return s.owners }

// Collections exposes the per-owner list.
func (s *Store) Collections() *linkedlist.List[domain.AccountID, domain.UnitID] { return s.owned }

func (s *Store) counter(view domain.TransactionView) (domain.UnitID, error) {
	raw, ok, err := view.Get(domain.BucketCounter, counterKey)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	if !ok {
		return s.start, nil
	}
	id, err := kv.Decode[domain.UnitID](kv.Uint32[domain.UnitID]{}, raw)
	if err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	return id, nil
}

// NextID returns the identifier the next create will use.
func (s *Store) NextID(view domain.TransactionView) (domain.UnitID, error) {
	id, err := s.counter(view)
	if err != nil {
		return 0, err
	}
	if id == domain.MaxUnitID {
		return 0, domain.ErrCounterOverflow
	}
	return id, nil
}

// Create allocates the next identifier and records dna owned by owner. The
// counter is checked before anything is written.
func (s *Store) Create(tx domain.Transaction, owner domain.AccountID, dna domain.DNA) (domain.UnitID, error) {
	if !owner.Valid() {
		return 0, domain.ErrInvalidAccount
	}
	id, err := s.NextID(tx)
	if err != nil {
		return 0, err
	}
	if err := s.dna.Put(tx, id, dna); err != nil {
		return 0, err
	}
	if err := s.owners.Put(tx, id, owner); err != nil {
		return 0, err
	}
	if err := s.owned.Append(tx, owner, id); err != nil {
		return 0, fmt.Errorf("append to collection: %w", err)
	}
	next, err := kv.Encode[domain.UnitID](kv.Uint32[domain.UnitID]{}, id+1)
	if err != nil {
		return 0, err
	}
	if err := tx.Put(domain.BucketCounter, counterKey, next); err != nil {
		return 0, err
	}
	return id, nil
}

// Exists reports whether id has a payload.
func (s *Store) Exists(view domain.TransactionView, id domain.UnitID) (bool, error) {
	return s.dna.Has(view, id)
}

// Get returns the unit payload.
func (s *Store) Get(view domain.TransactionView, id domain.UnitID) (domain.Unit, error) {
	dna, ok, err := s.dna.Get(view, id)
	if err != nil {
		return domain.Unit{}, err
	}
	if !ok {
		return domain.Unit{}, fmt.Errorf("unit %d: %w", id, domain.ErrInvalidUnitID)
	}
	return domain.Unit{ID: id, DNA: dna}, nil
}

// OwnerOf returns the current owner of id.
func (s *Store) OwnerOf(view domain.TransactionView, id domain.UnitID) (domain.AccountID, error) {
	owner, ok, err := s.owners.Get(view, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("unit %d: %w", id, domain.ErrInvalidUnitID)
	}
	return owner, nil
}

// SetOwner moves id from one collection to another and records the new owner.
// The caller has already checked that from owns id.
func (s *Store) SetOwner(tx domain.Transaction, id domain.UnitID, from, to domain.AccountID) error {
	if !to.Valid() {
		return domain.ErrInvalidAccount
	}
	if err := s.owned.Remove(tx, from, id); err != nil {
		return fmt.Errorf("remove from collection: %w", err)
	}
	if err := s.owned.Append(tx, to, id); err != nil {
		return fmt.Errorf("append to collection: %w", err)
	}
	return s.owners.Put(tx, id, to)
}

// OwnedBy enumerates owner's collection in acquisition order.
func (s *Store) OwnedBy(view domain.TransactionView, owner domain.AccountID) ([]domain.UnitID, error) {
	ids, err := s.owned.Members(view, owner)
	if err != nil {
		return nil, fmt.Errorf("collection of %s: %w", owner, err)
	}
	return ids, nil
}

// Owns reports whether id is in owner's collection.
func (s *Store) Owns(view domain.TransactionView, owner domain.AccountID, id domain.UnitID) (bool, error) {
	return s.owned.Contains(view, owner, id)
}

// Count returns how many units have been created.
func (s *Store) Count(view domain.TransactionView) (uint64, error) {
	id, err := s.counter(view)
	if err != nil {
		return 0, err
	}
	return uint64(id - s.start), nil
}
