// Package redis provides a Redis-backed KV store. Each bucket is one hash
// under "<prefix>:<bucket>" and commits run as a MULTI/EXEC pipeline.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"unitledger/internal/infra/persistence/txn"
	"unitledger/pkg/domain"
)

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ txn.Backend            = (*Backend)(nil)
)

// DefaultPrefix namespaces the bucket hashes when no prefix is configured.
const DefaultPrefix = "unitledger"

// Store persists state to Redis through the shared transactional overlay.
type Store struct {
	*txn.Store
	backend *Backend
}

// NewStore parses url, pings the server, and wraps the client.
func NewStore(ctx context.Context, url, prefix string, engine *domain.RulesEngine) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewStoreWithClient(client, prefix, engine), nil
}

// NewStoreWithClient wraps an existing client. Close closes the client.
func NewStoreWithClient(client *goredis.Client, prefix string, engine *domain.RulesEngine) *Store {
	backend := NewBackend(client, prefix)
	return &Store{Store: txn.NewStore(backend, engine), backend: backend}
}

// Client exposes the underlying client for health checks.
func (s *Store) Client() *goredis.Client { return s.backend.client }

// Health checks if the Redis connection is healthy.
func (s *Store) Health(ctx context.Context) error {
	return s.backend.client.Ping(ctx).Err()
}

// Backend implements txn.Backend on Redis hashes.
type Backend struct {
	client *goredis.Client
	prefix string
}

// NewBackend builds a backend; an empty prefix falls back to DefaultPrefix.
func NewBackend(client *goredis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

// HashKey returns the Redis key holding bucket.
func (b *Backend) HashKey(bucket domain.Bucket) string {
	return b.prefix + ":" + string(bucket)
}

// Load reads one committed field.
func (b *Backend) Load(ctx context.Context, bucket domain.Bucket, key []byte) ([]byte, bool, error) {
	value, err := b.client.HGet(ctx, b.HashKey(bucket), string(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hget %s: %w", bucket, err)
	}
	return value, true, nil
}

// Apply writes the change set in a single MULTI/EXEC block.
func (b *Backend) Apply(ctx context.Context, changes []domain.Change) error {
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, change := range changes {
			hash := b.HashKey(change.Bucket)
			if change.Action == domain.ActionDelete {
				pipe.HDel(ctx, hash, string(change.Key))
				continue
			}
			pipe.HSet(ctx, hash, string(change.Key), change.After)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("exec pipeline: %w", err)
	}
	return nil
}

// Dump reads every registry bucket.
func (b *Backend) Dump(ctx context.Context) (domain.Snapshot, error) {
	snapshot := domain.NewSnapshot()
	for _, bucket := range domain.AllBuckets {
		fields, err := b.client.HGetAll(ctx, b.HashKey(bucket)).Result()
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("hgetall %s: %w", bucket, err)
		}
		for field, value := range fields {
			snapshot.Add(bucket, []byte(field), []byte(value))
		}
	}
	return snapshot, nil
}

// Restore replaces every registry bucket with snapshot in one MULTI/EXEC block.
func (b *Backend) Restore(ctx context.Context, snapshot domain.Snapshot) error {
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		keys := make([]string, 0, len(domain.AllBuckets))
		for _, bucket := range domain.AllBuckets {
			keys = append(keys, b.HashKey(bucket))
		}
		pipe.Del(ctx, keys...)
		for bucket, entries := range snapshot.Buckets {
			for _, e := range entries {
				pipe.HSet(ctx, b.HashKey(bucket), string(e.Key), e.Value)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore pipeline: %w", err)
	}
	return nil
}

// Close closes the client.
func (b *Backend) Close() error { return b.client.Close() }
