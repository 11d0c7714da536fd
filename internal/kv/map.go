package kv

import (
	"fmt"

	"unitledger/pkg/domain"
)

// Map is a typed view of one bucket: the get / insert / remove capability
// over keys K and values V.
type Map[K, V any] struct {
	bucket domain.Bucket
	keys   Codec[K]
	values Codec[V]
}

// NewMap binds codecs to bucket.
func NewMap[K, V any](bucket domain.Bucket, keys Codec[K], values Codec[V]) Map[K, V] {
	return Map[K, V]{bucket: bucket, keys: keys, values: values}
}

// Bucket returns the namespace the map writes to.
func (m Map[K, V]) Bucket() domain.Bucket { return m.bucket }

// Key returns the encoded form of k.
func (m Map[K, V]) Key(k K) ([]byte, error) {
	b, err := Encode(m.keys, k)
	if err != nil {
		return nil, fmt.Errorf("encode %s key: %w", m.bucket, err)
	}
	return b, nil
}

// Get returns the value stored under k.
func (m Map[K, V]) Get(view domain.TransactionView, k K) (V, bool, error) {
	var zero V
	key, err := m.Key(k)
	if err != nil {
		return zero, false, err
	}
	raw, ok, err := view.Get(m.bucket, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := Decode(m.values, raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s value: %w", m.bucket, err)
	}
	return v, true, nil
}

// Has reports whether k is present.
func (m Map[K, V]) Has(view domain.TransactionView, k K) (bool, error) {
	key, err := m.Key(k)
	if err != nil {
		return false, err
	}
	_, ok, err := view.Get(m.bucket, key)
	return ok, err
}

// Put inserts or overwrites k.
func (m Map[K, V]) Put(tx domain.Transaction, k K, v V) error {
	key, err := m.Key(k)
	if err != nil {
		return err
	}
	raw, err := Encode(m.values, v)
	if err != nil {
		return fmt.Errorf("encode %s value: %w", m.bucket, err)
	}
	return tx.Put(m.bucket, key, raw)
}

// Delete removes k; removing a missing key is a no-op.
func (m Map[K, V]) Delete(tx domain.Transaction, k K) error {
	key, err := m.Key(k)
	if err != nil {
		return err
	}
	return tx.Delete(m.bucket, key)
}

// DecodeKey parses a raw key of this map, for rules that inspect change sets.
func (m Map[K, V]) DecodeKey(raw []byte) (K, error) {
	return Decode(m.keys, raw)
}

// DecodeValue parses a raw value of this map.
func (m Map[K, V]) DecodeValue(raw []byte) (V, error) {
	return Decode(m.values, raw)
}
