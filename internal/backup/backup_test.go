package backup_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitledger/internal/backup"
	"unitledger/internal/blob"
	"unitledger/internal/core"
	"unitledger/internal/entropy"
	blobmem "unitledger/internal/infra/blob/memory"
	"unitledger/internal/infra/persistence/memory"
	"unitledger/pkg/domain"
)

func seededService(t *testing.T) *core.Service {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithEntropy(entropy.NewFixed([]byte("backup"))))
	a, err := svc.Create(ctx, "alice", core.CreateOptions{})
	require.NoError(t, err)
	b, err := svc.Create(ctx, "alice", core.CreateOptions{})
	require.NoError(t, err)
	_, err = svc.Breed(ctx, "alice", a.ID, b.ID, core.BreedOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Transfer(ctx, "alice", "bob", a.ID, core.TransferOptions{}))
	return svc
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := seededService(t)
	blobs := blobmem.New()
	key := backup.Key(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Equal(t, "backups/20250304T050607Z.json", key)

	info, err := backup.Export(ctx, source.Store(), blobs, key)
	require.NoError(t, err)
	assert.Equal(t, "application/json", info.ContentType)
	assert.Equal(t, "1", info.Metadata["format-version"])

	target := core.NewService(memory.NewStore(core.NewDefaultRulesEngine()))
	doc, err := backup.Import(ctx, target.Store(), blobs, key)
	require.NoError(t, err)
	assert.Equal(t, backup.FormatVersion, doc.Version)
	assert.Positive(t, doc.Entries)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	bobs, err := target.UnitsOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.UnitID{0}, bobs)
	alices, err := target.UnitsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.UnitID{1, 2}, alices)
	pair, ok, err := target.Parents(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ParentPair{A: 0, B: 1}, pair)

	want, err := source.Store().ExportState(ctx)
	require.NoError(t, err)
	got, err := target.Store().ExportState(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExportRefusesToOverwrite(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	blobs := blobmem.New()
	_, err := backup.Export(ctx, svc.Store(), blobs, "backups/x.json")
	require.NoError(t, err)
	_, err = backup.Export(ctx, svc.Store(), blobs, "backups/x.json")
	require.ErrorIs(t, err, blob.ErrExists)
}

func TestImportRejectsBadDocuments(t *testing.T) {
	ctx := context.Background()
	blobs := blobmem.New()
	put := func(key, body string) {
		_, err := blobs.Put(ctx, key, bytes.NewReader([]byte(body)), blob.PutOptions{})
		require.NoError(t, err)
	}
	put("garbage", "{")
	put("future", `{"version":99,"entries":0,"snapshot":{"buckets":{}}}`)
	put("truncated", `{"version":1,"entries":5,"snapshot":{"buckets":{}}}`)

	store := memory.NewStore(nil)
	for _, key := range []string{"garbage", "future", "truncated"} {
		_, err := backup.Import(ctx, store, blobs, key)
		require.Error(t, err, key)
	}
	_, err := backup.Import(ctx, store, blobs, "missing")
	require.True(t, errors.Is(err, blob.ErrNotFound))
}
