// Package backup copies the full contents of a persistent store to a blob
// store and back.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"unitledger/internal/blob"
	"unitledger/pkg/domain"
)

// FormatVersion is written into every backup document.
const FormatVersion = 1

const contentType = "application/json"

// Document is the JSON envelope stored in the blob.
type Document struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Entries   int             `json:"entries"`
	Snapshot  domain.Snapshot `json:"snapshot"`
}

// Key returns the default object key for a backup taken at t.
func Key(t time.Time) string {
	return "backups/" + t.UTC().Format("20060102T150405Z") + ".json"
}

// Export dumps store and writes it under key. Existing keys are never overwritten.
func Export(ctx context.Context, store domain.PersistentStore, blobs blob.Store, key string) (blob.Info, error) {
	snapshot, err := store.ExportState(ctx)
	if err != nil {
		return blob.Info{}, fmt.Errorf("export state: %w", err)
	}
	doc := Document{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Entries:   snapshot.Len(),
		Snapshot:  snapshot,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode backup: %w", err)
	}
	info, err := blobs.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"format-version": strconv.Itoa(FormatVersion),
			"entries":        strconv.Itoa(doc.Entries),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("write backup %s: %w", key, err)
	}
	return info, nil
}

// Import replaces the contents of store with the backup stored under key.
func Import(ctx context.Context, store domain.PersistentStore, blobs blob.Store, key string) (Document, error) {
	_, rc, err := blobs.Get(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("read backup %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	var doc Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode backup %s: %w", key, err)
	}
	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("backup %s has unsupported format version %d", key, doc.Version)
	}
	if got := doc.Snapshot.Len(); got != doc.Entries {
		return Document{}, fmt.Errorf("backup %s is truncated: %d of %d entries", key, got, doc.Entries)
	}
	if err := store.ImportState(ctx, doc.Snapshot); err != nil {
		return Document{}, fmt.Errorf("import state: %w", err)
	}
	return doc, nil
}
