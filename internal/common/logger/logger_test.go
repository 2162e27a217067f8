package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaname.log")

	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("hello", zap.String("key", "value"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaname.log")

	log, err := NewLogger(LoggingConfig{Level: "loud", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestWithFields_DoesNotAliasParent(t *testing.T) {
	base := NewNop().WithFields(zap.String("a", "1"))
	left := base.WithFields(zap.String("b", "2"))
	right := base.WithFields(zap.String("c", "3"))

	assert.Len(t, base.fields, 1)
	require.Len(t, left.fields, 2)
	require.Len(t, right.fields, 2)
	assert.Equal(t, "b", left.fields[1].Key)
	assert.Equal(t, "c", right.fields[1].Key)
}

func TestWithContext(t *testing.T) {
	base := NewNop()

	assert.Same(t, base, base.WithContext(context.Background()))

	ctx := context.WithValue(context.Background(), CommandIDKey, "cmd-1")
	withCmd := base.WithContext(ctx)
	require.Len(t, withCmd.fields, 1)
	assert.Equal(t, "command_id", withCmd.fields[0].Key)
}

func TestDetectLogFormat(t *testing.T) {
	t.Setenv("KANAME_ENV", "production")
	assert.Equal(t, "json", DetectLogFormat())

	t.Setenv("KANAME_ENV", "")
	assert.Equal(t, "text", DetectLogFormat())
}
