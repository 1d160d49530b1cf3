package testutil

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile writes content to path, creating parent directories.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	require.NoError(t, os.MkdirAll(dir, 0o755), "Failed to create directory %s for dummy file", dir)
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644), "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at path.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	require.NoError(t, os.MkdirAll(fullPath, 0o755), "Failed to create dummy directory %s", fullPath)
}

// NewTestLogger returns a debug-level text handler writing to a buffer. The
// buffer is dumped to the test log when the test fails.
func NewTestLogger(t *testing.T) (slog.Handler, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured logs:\n%s", buf.String())
		}
	})
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}), buf
}
