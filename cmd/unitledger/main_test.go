package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"unitledger/pkg/domain"
)

// sandbox points the CLI at a fresh sqlite file and fs blob root.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Setenv("UNITLEDGER_STORAGE_DRIVER", "sqlite")
	t.Setenv("UNITLEDGER_STORAGE_SQLITE_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("UNITLEDGER_BLOB_DRIVER", "fs")
	t.Setenv("UNITLEDGER_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("UNITLEDGER_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "unitledger %s", strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v), raw)
	return v
}

func TestCommandsShareTheConfiguredStore(t *testing.T) {
	sandbox(t)

	first := decode[unitView](t, mustRun(t, "create", "--as", "alice"))
	second := decode[unitView](t, mustRun(t, "create", "--as", "alice"))
	assert.Equal(t, domain.UnitID(0), first.ID)
	assert.Equal(t, domain.UnitID(1), second.ID)
	assert.Len(t, first.DNA, 2*domain.DNALength)

	child := decode[unitView](t, mustRun(t, "breed", "0", "1", "--as", "bob"))
	assert.Equal(t, domain.UnitID(2), child.ID)
	assert.Equal(t, domain.AccountID("bob"), child.Owner)

	moved := decode[transferView](t, mustRun(t, "transfer", "0", "carol", "--as", "alice"))
	assert.Equal(t, transferView{ID: 0, From: "alice", To: "carol"}, moved)

	shown := decode[unitView](t, mustRun(t, "show", "2"))
	require.NotNil(t, shown.Parents)
	assert.Equal(t, domain.ParentPair{A: 0, B: 1}, *shown.Parents)
	assert.Equal(t, child.DNA, shown.DNA)

	listed := decode[accountView](t, mustRun(t, "list", "alice"))
	assert.Equal(t, []domain.UnitID{1}, listed.Units)

	t.Setenv("UNITLEDGER_ACCOUNT", "carol")
	mine := decode[accountView](t, mustRun(t, "list"))
	assert.Equal(t, accountView{Account: "carol", Units: []domain.UnitID{0}}, mine)

	lineage := decode[lineageView](t, mustRun(t, "lineage", "0", "--child", "2", "--mate", "1"))
	assert.Nil(t, lineage.Parents)
	require.NotNil(t, lineage.HasChild)
	require.NotNil(t, lineage.MateOf)
	assert.True(t, *lineage.HasChild)
	assert.True(t, *lineage.MateOf)
}

func TestCommandErrors(t *testing.T) {
	sandbox(t)
	mustRun(t, "create", "--as", "alice")

	_, err := run(t, "create")
	require.ErrorContains(t, err, "acting account required")

	_, err = run(t, "transfer", "0", "bob", "--as", "mallory")
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = run(t, "show", "99")
	require.ErrorIs(t, err, domain.ErrInvalidUnitID)

	_, err = run(t, "breed", "0", "0", "--as", "alice")
	require.ErrorIs(t, err, domain.ErrRequireDifferentParents)

	_, err = run(t, "show", "x")
	require.ErrorContains(t, err, "unsigned 32-bit")

	_, err = run(t, "show", "0", "--output", "toml")
	require.ErrorContains(t, err, "--output")
}

func TestYAMLOutput(t *testing.T) {
	sandbox(t)
	out := mustRun(t, "create", "--as", "alice", "--output", "yaml")
	var view map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, 0, view["id"])
	assert.Equal(t, "alice", view["owner"])
	assert.NotContains(t, view, "parents")
}

func TestBackupExportImport(t *testing.T) {
	dir := sandbox(t)
	mustRun(t, "create", "--as", "alice")
	mustRun(t, "create", "--as", "alice")

	exported := decode[backupView](t, mustRun(t, "backup", "export", "snap.json"))
	assert.Equal(t, "snap.json", exported.Key)
	assert.Positive(t, exported.Entries)
	_, err := os.Stat(filepath.Join(dir, "blobs", "snap.json"))
	require.NoError(t, err)

	_, err = run(t, "backup", "export", "snap.json")
	require.Error(t, err, "backups are create-only")

	t.Setenv("UNITLEDGER_STORAGE_SQLITE_PATH", filepath.Join(dir, "restored.db"))
	imported := decode[backupView](t, mustRun(t, "backup", "import", "snap.json"))
	assert.Equal(t, exported.Entries, imported.Entries)

	listed := decode[accountView](t, mustRun(t, "list", "alice"))
	assert.Equal(t, []domain.UnitID{0, 1}, listed.Units)
}

func TestConfigFileAndStartID(t *testing.T) {
	dir := sandbox(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry:\n  start_id: 500\n"), 0o600))
	created := decode[unitView](t, mustRun(t, "--config", path, "create", "--as", "alice"))
	assert.Equal(t, domain.UnitID(500), created.ID)

	_, err := run(t, "--config", filepath.Join(dir, "missing.yaml"), "list", "alice")
	require.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	sandbox(t)
	a := &app{v: viper.New(), output: "json", out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, registry: prometheus.NewRegistry()}
	require.NoError(t, a.init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestMainExitCodes(t *testing.T) {
	sandbox(t)
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	t.Cleanup(func() { exitFunc = old })
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = []string{"unitledger", "list", "nobody"}
	main()
	os.Args = []string{"unitledger", "show", "42"}
	main()
	assert.Equal(t, []int{0, 1}, codes)
}
