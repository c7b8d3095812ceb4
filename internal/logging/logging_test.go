package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	require.NoError(t, Init(Config{Level: "debug", Format: "json", OutputPath: path}))
	L().Debug("opened folder", zap.String("item_id", "A!1"))
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"item_id":"A!1"`)
	assert.Contains(t, string(data), `"msg":"opened folder"`)
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, Init(Config{Level: "bogus", Format: "json", OutputPath: path}))

	assert.Equal(t, zapcore.InfoLevel, globalLevel.Level())
	L().Debug("hidden")

	SetLevel("debug")
	L().Debug("shown")
	SetLevel("nonsense")
	assert.Equal(t, zapcore.DebugLevel, globalLevel.Level())
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.True(t, strings.Contains(string(data), "shown"))
}
