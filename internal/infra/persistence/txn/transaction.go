package txn

import (
	"bytes"
	"context"
	"fmt"

	"unitledger/pkg/domain"
)

type staged struct {
	bucket    domain.Bucket
	key       []byte
	value     []byte
	deleted   bool
	before    []byte
	hadBefore bool
}

// transaction stages writes over a backend. Reads consult the overlay first.
type transaction struct {
	ctx     context.Context
	backend Backend
	writes  map[string]*staged
	order   []string
}

func newTransaction(ctx context.Context, backend Backend) *transaction {
	return &transaction{
		ctx:     ctx,
		backend: backend,
		writes:  make(map[string]*staged),
	}
}

func overlayKey(bucket domain.Bucket, key []byte) string {
	return string(bucket) + "\x00" + string(key)
}

// Get returns the staged value when present, otherwise the committed one.
func (tx *transaction) Get(bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	if w, ok := tx.writes[overlayKey(bucket, key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return bytes.Clone(w.value), true, nil
	}
	value, ok, err := tx.backend.Load(tx.ctx, bucket, key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", bucket, err)
	}
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

// Put stages an insert or overwrite.
func (tx *transaction) Put(bucket domain.Bucket, key, value []byte) error {
	w, err := tx.entry(bucket, key)
	if err != nil {
		return err
	}
	w.value = bytes.Clone(value)
	w.deleted = false
	return nil
}

// Delete stages a removal. Deleting a missing key is allowed.
func (tx *transaction) Delete(bucket domain.Bucket, key []byte) error {
	w, err := tx.entry(bucket, key)
	if err != nil {
		return err
	}
	w.value = nil
	w.deleted = true
	return nil
}

func (tx *transaction) entry(bucket domain.Bucket, key []byte) (*staged, error) {
	k := overlayKey(bucket, key)
	if w, ok := tx.writes[k]; ok {
		return w, nil
	}
	before, had, err := tx.backend.Load(tx.ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", bucket, err)
	}
	w := &staged{bucket: bucket, key: bytes.Clone(key), before: bytes.Clone(before), hadBefore: had}
	tx.writes[k] = w
	tx.order = append(tx.order, k)
	return w, nil
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return transactionView{tx: tx}
}

// Changes lists staged mutations in first-write order, dropping ones that
// leave the committed state untouched.
func (tx *transaction) Changes() []domain.Change {
	out := make([]domain.Change, 0, len(tx.order))
	for _, k := range tx.order {
		w := tx.writes[k]
		if w.deleted {
			if !w.hadBefore {
				continue
			}
			out = append(out, domain.Change{
				Bucket: w.bucket,
				Key:    bytes.Clone(w.key),
				Action: domain.ActionDelete,
				Before: bytes.Clone(w.before),
			})
			continue
		}
		if w.hadBefore && bytes.Equal(w.before, w.value) {
			continue
		}
		change := domain.Change{
			Bucket: w.bucket,
			Key:    bytes.Clone(w.key),
			Action: domain.ActionPut,
			After:  bytes.Clone(w.value),
		}
		if w.hadBefore {
			change.Before = bytes.Clone(w.before)
		}
		out = append(out, change)
	}
	return out
}

type transactionView struct {
	tx *transaction
}

func (v transactionView) Get(bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	return v.tx.Get(bucket, key)
}
