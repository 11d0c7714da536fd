// Package cache decorates a KV backend with an in-memory read cache for
// buckets whose values never change once written.
package cache

import (
	"bytes"
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"unitledger/internal/infra/persistence/txn"
	"unitledger/pkg/domain"
)

var _ txn.Backend = (*Backend)(nil)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = 30 * time.Minute

// ImmutableBuckets hold values that are written once and never overwritten.
var ImmutableBuckets = []domain.Bucket{domain.BucketUnits, domain.BucketParents}

// Backend memoizes committed reads of the configured buckets.
type Backend struct {
	inner   txn.Backend
	cache   *gocache.Cache
	buckets map[domain.Bucket]struct{}
}

// NewBackend wraps inner. Only hits are cached; misses always reach inner.
func NewBackend(inner txn.Backend, ttl time.Duration, buckets ...domain.Bucket) *Backend {
	if len(buckets) == 0 {
		buckets = ImmutableBuckets
	}
	set := make(map[domain.Bucket]struct{}, len(buckets))
	for _, b := range buckets {
		set[b] = struct{}{}
	}
	return &Backend{
		inner:   inner,
		cache:   gocache.New(ttl, DefaultCleanupInterval),
		buckets: set,
	}
}

// NewStore wraps the backend of an existing store in a cache and returns a
// store sharing the same rules engine.
func NewStore(store interface {
	Backend() txn.Backend
	RulesEngine() *domain.RulesEngine
}, ttl time.Duration) *txn.Store {
	return txn.NewStore(NewBackend(store.Backend(), ttl), store.RulesEngine())
}

func cacheKey(bucket domain.Bucket, key []byte) string {
	return string(bucket) + "\x00" + string(key)
}

func (b *Backend) cached(bucket domain.Bucket) bool {
	_, ok := b.buckets[bucket]
	return ok
}

// Load serves cached buckets from memory when possible.
func (b *Backend) Load(ctx context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	if !b.cached(bucket) {
		return b.inner.Load(ctx, bucket, key)
	}
	k := cacheKey(bucket, key)
	if v, found := b.cache.Get(k); found {
		if value, ok := v.([]byte); ok {
			return bytes.Clone(value), true, nil
		}
	}
	value, ok, err := b.inner.Load(ctx, bucket, key)
	if err != nil || !ok {
		return value, ok, err
	}
	b.cache.SetDefault(k, bytes.Clone(value))
	return value, true, nil
}

// Apply forwards to inner and drops every touched key from the cache.
func (b *Backend) Apply(ctx context.Context, changes []domain.Change) error {
	for _, change := range changes {
		if b.cached(change.Bucket) {
			b.cache.Delete(cacheKey(change.Bucket, change.Key))
		}
	}
	return b.inner.Apply(ctx, changes)
}

// Dump reads straight from inner.
func (b *Backend) Dump(ctx context.Context) (domain.Snapshot, error) {
	return b.inner.Dump(ctx)
}

// Restore flushes the cache and forwards to inner.
func (b *Backend) Restore(ctx context.Context, snapshot domain.Snapshot) error {
	b.cache.Flush()
	return b.inner.Restore(ctx, snapshot)
}

// Close flushes the cache and closes inner.
func (b *Backend) Close() error {
	b.cache.Flush()
	return b.inner.Close()
}

// Len reports the number of cached entries.
func (b *Backend) Len() int { return b.cache.ItemCount() }
