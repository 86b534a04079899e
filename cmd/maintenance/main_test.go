package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig はテスト用のconfig.yamlを書き出し、そのパスを返します。
func writeConfig(t *testing.T, dir string, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "apple.db") + "\n" +
		"storage:\n  upload_dir: " + filepath.Join(dir, "uploads") + "\n" +
		"log:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")

	out, err := execute(t, "migrate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "migration ok")
	assert.FileExists(t, filepath.Join(dir, "apple.db"))
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))

	orphan := filepath.Join(uploads, "orphan.png")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "fresh.png"), []byte("x"), 0o600))

	t.Run("dry run keeps files", func(t *testing.T) {
		out, err := execute(t, "reconcile", "--dry-run", "--config", cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "orphan.png")
		assert.NotContains(t, out, "fresh.png")
		assert.Contains(t, out, "removed=0 dry_run=true")
		assert.FileExists(t, orphan)
	})

	t.Run("removes orphans past the grace period", func(t *testing.T) {
		out, err := execute(t, "reconcile", "--config", cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "removed=1")
		assert.NoFileExists(t, orphan)
		assert.FileExists(t, filepath.Join(uploads, "fresh.png"))
	})
}

func TestLabels_Mismatch(t *testing.T) {
	dir := t.TempDir()
	labels := filepath.Join(dir, "class_labels.json")
	require.NoError(t, os.WriteFile(labels, []byte(`{"0":"Healthy_Apple","1":"Scab_Apple"}`), 0o600))
	cfg := writeConfig(t, dir, "model:\n  backend: tflite\n  labels_path: "+labels+"\n  path: "+filepath.Join(dir, "missing.tflite")+"\n")

	out, err := execute(t, "labels", "--config", cfg)
	assert.ErrorIs(t, err, errLabelMismatch)
	assert.Contains(t, out, "0\tHealthy_Apple\tHealthy Apple")
	assert.Contains(t, out, "1\tScab_Apple\tApple Scab")
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
