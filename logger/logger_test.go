package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger_File(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	path := filepath.Join(t.TempDir(), "imgcheck.log")
	require.NoError(t, InitLogger(false, path))

	zap.S().Infow("progress", "completed", 3, "total", 10)
	zap.S().Debugw("hidden at info level")
	Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"progress"`)
	assert.Contains(t, string(b), `"completed":3`)
	assert.Contains(t, string(b), `"ts":`)
	assert.NotContains(t, string(b), "hidden at info level")
}

func TestInitLogger_BadPath(t *testing.T) {
	err := InitLogger(true, filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}
