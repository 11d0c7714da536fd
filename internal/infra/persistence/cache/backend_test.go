package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unitledger/internal/infra/persistence/memory"
	"unitledger/internal/infra/persistence/storetest"
	"unitledger/pkg/domain"
)

type countingBackend struct {
	*memory.Backend
	loads int
}

func (c *countingBackend) Load(ctx context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	c.loads++
	return c.Backend.Load(ctx, bucket, key)
}

func TestCacheContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) domain.PersistentStore {
		return NewStore(memory.NewStore(nil), time.Minute)
	})
}

func TestLoadServesImmutableBucketsFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingBackend{Backend: memory.NewBackend()}
	require.NoError(t, inner.Apply(ctx, []domain.Change{
		{Bucket: domain.BucketUnits, Key: []byte{1}, Action: domain.ActionPut, After: []byte("dna")},
		{Bucket: domain.BucketOwners, Key: []byte{1}, Action: domain.ActionPut, After: []byte("alice")},
	}))
	b := NewBackend(inner, time.Minute)

	for range 3 {
		value, ok, err := b.Load(ctx, domain.BucketUnits, []byte{1})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("dna"), value)
	}
	require.Equal(t, 1, inner.loads)
	require.Equal(t, 1, b.Len())

	for range 2 {
		_, _, err := b.Load(ctx, domain.BucketOwners, []byte{1})
		require.NoError(t, err)
	}
	require.Equal(t, 3, inner.loads, "mutable buckets bypass the cache")
}

func TestLoadDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingBackend{Backend: memory.NewBackend()}
	b := NewBackend(inner, time.Minute)

	_, ok, err := b.Load(ctx, domain.BucketParents, []byte{9})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, b.Apply(ctx, []domain.Change{
		{Bucket: domain.BucketParents, Key: []byte{9}, Action: domain.ActionPut, After: []byte("pair")},
	}))
	value, ok, err := b.Load(ctx, domain.BucketParents, []byte{9})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("pair"), value)
}

func TestApplyAndRestoreInvalidate(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(memory.NewBackend(), time.Minute)
	require.NoError(t, b.Apply(ctx, []domain.Change{
		{Bucket: domain.BucketUnits, Key: []byte{2}, Action: domain.ActionPut, After: []byte("old")},
	}))
	_, _, err := b.Load(ctx, domain.BucketUnits, []byte{2})
	require.NoError(t, err)

	require.NoError(t, b.Apply(ctx, []domain.Change{
		{Bucket: domain.BucketUnits, Key: []byte{2}, Action: domain.ActionDelete, Before: []byte("old")},
	}))
	_, ok, err := b.Load(ctx, domain.BucketUnits, []byte{2})
	require.NoError(t, err)
	require.False(t, ok)

	snapshot := domain.NewSnapshot()
	snapshot.Add(domain.BucketUnits, []byte{3}, []byte("restored"))
	require.NoError(t, b.Restore(ctx, snapshot))
	require.Equal(t, 0, b.Len())
	value, ok, err := b.Load(ctx, domain.BucketUnits, []byte{3})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("restored"), value)
}
