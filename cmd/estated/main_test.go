package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"estatecore/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, dbName string) string {
	t.Helper()
	cfg := `
server:
  http_addr: 127.0.0.1:0
  shutdown_timeout: 2s
storage:
  driver: sqlite
  sqlite_path: ` + filepath.Join(dir, dbName) + `
blob:
  driver: fs
  fs_root: ` + filepath.Join(dir, "blobs") + `
logging:
  level: error
`
	path := filepath.Join(dir, dbName+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func invoke(t *testing.T, ctx context.Context, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsageErrors(t *testing.T) {
	ctx := context.Background()
	code, _, stderr := invoke(t, ctx)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: estated")

	code, _, stderr = invoke(t, ctx, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "bogus"`)

	code, _, _ = invoke(t, ctx, "restore")
	assert.Equal(t, 2, code)

	code, _, _ = invoke(t, ctx, "-nope")
	assert.Equal(t, 2, code)
}

func TestMissingConfigFile(t *testing.T) {
	code, _, stderr := invoke(t, context.Background(), "-config", filepath.Join(t.TempDir(), "missing.yaml"), "backups")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "failed to read config file")
}

func TestBackupListRestore(t *testing.T) {
	dir := t.TempDir()
	src := writeConfig(t, dir, "source.db")
	ctx := context.Background()

	a := openApp(t, src)
	_, err := a.service.AddProperty(ctx, "1 Main", "House", "")
	require.NoError(t, err)
	_, err = a.service.AddTenant(ctx, "Alice")
	require.NoError(t, err)
	a.close()

	code, out, stderr := invoke(t, ctx, "-config", src, "backup")
	require.Equal(t, 0, code, stderr)
	key := strings.SplitN(strings.TrimSpace(out), "\t", 2)[0]
	assert.True(t, strings.HasPrefix(key, "backups/"), key)

	code, out, stderr = invoke(t, ctx, "-config", src, "backups")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, key)

	dst := writeConfig(t, dir, "target.db")
	code, out, stderr = invoke(t, ctx, "-config", dst, "restore", key)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "restored 2 records")

	restored := openApp(t, dst)
	defer restored.close()
	tenant, err := restored.service.GetTenant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Alice", tenant.Name)

	code, _, stderr = invoke(t, ctx, "-config", dst, "restore", key)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)
}

func TestServeStopsOnCancel(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "serve.db")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int, 1)
	go func() {
		code, _, _ := invoke(t, ctx, "-config", path, "serve")
		done <- code
	}()
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func openApp(t *testing.T, configPath string) *app {
	t.Helper()
	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	return a
}
