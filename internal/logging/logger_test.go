package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	l.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
	assert.Contains(t, out, "[ERROR] also shown")

	l.SetLevel(DEBUG)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")
}

func TestInitializeWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))
	t.Cleanup(func() {
		GetLogger().Close()
		globalMu.Lock()
		globalLogger = nil
		globalMu.Unlock()
	})

	GetLogger().SetConsole(nil)
	Info("course %s done", "8473")

	path := filepath.Join(dir, ".roster", "logs", "roster.log")
	assert.Equal(t, path, GetLogger().GetLogPath())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] course 8473 done")
}

func TestGetLevelString(t *testing.T) {
	assert.Equal(t, "FATAL", getLevelString(FATAL))
	assert.Equal(t, "UNKNOWN", getLevelString(42))
}
