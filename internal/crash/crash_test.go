package crash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReportFallsBackToTemp(t *testing.T) {
	path, err := writeReport("", "boom", []byte("stacktrace"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })
	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Train Dispatcher Crash Report")
	assert.Contains(t, string(b), "Panic: boom")
	assert.NotContains(t, string(b), "DataDir:")
}

func TestWriteReportUsesDataDir(t *testing.T) {
	dir := t.TempDir()
	path, err := writeReport(dir, "kaboom", []byte("stack"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ReportsDirName), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "crash-"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "DataDir: "+dir)
}
