//go:build integration

package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"unitledger/internal/infra/persistence/storetest"
	"unitledger/pkg/domain"
)

func TestRedisContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	storetest.RunContract(t, func(t *testing.T) domain.PersistentStore {
		opts, err := goredis.ParseURL(addr)
		if err != nil {
			t.Fatalf("failed to parse redis URL: %v", err)
		}
		client := goredis.NewClient(opts)
		if err := client.FlushAll(ctx).Err(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		store := NewStoreWithClient(client, "contract", nil)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
