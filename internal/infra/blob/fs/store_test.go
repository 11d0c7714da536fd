package fs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"unitledger/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestKeysAreConfinedToRoot(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestPutWritesSidecarAndETag(t *testing.T) {
	store := newTempStore(t)
	info, err := store.Put(context.Background(), "a/b.json", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	// sha256("hello")
	if info.ETag != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("unexpected etag %s", info.ETag)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "a", "b.json.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
}

func TestCorruptSidecarSurfacesError(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "k.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := store.Head(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatal("expected list to fail on corrupt sidecar")
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != defaultRoot {
		t.Fatalf("root = %s", store.Root())
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("driver = %s", store.Driver())
	}
}
