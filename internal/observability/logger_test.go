package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/locus/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "locus",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))
		logger.Named("recovery").Info("Recovered.")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "locus.recovery.")
		assert.Contains(t, out, "Recovered.")
	})

	t.Run("json output carries fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "locus"}, zapcore.AddSync(&buf))
		logger.Warn("Budget exhausted.", zap.String("strategy", "semantic"))
		logger.Debug("Dropped.")
		require.NoError(t, logger.Sync())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1, "debug entries are below the configured level")
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "locus", entry["logger"])
		assert.Equal(t, "Budget exhausted.", entry["msg"])
		assert.Equal(t, "semantic", entry["strategy"])
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "loud", Format: "json"}, zapcore.AddSync(&buf))
		logger.Debug("hidden")
		logger.Info("shown")
		require.NoError(t, logger.Sync())
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("log file receives json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locus.log")
		logger := NewLogger(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: path,
			MaxSize: 1,
		}, zapcore.AddSync(&bytes.Buffer{}))
		logger.Error("Written to file.")
		_ = logger.Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &entry))
		assert.Equal(t, "Written to file.", entry["msg"])
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		var first, second bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, zapcore.AddSync(&first))
		l1 := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.AddSync(&second))
		l2 := GetLogger()

		assert.Same(t, l1, l2)
		l2.Info("hello")
		Sync()
		assert.Contains(t, first.String(), "first")
		assert.Empty(t, second.String())
	})

	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		assert.Nil(t, globalLogger.Load())
		assert.NotNil(t, GetLogger())
		Sync()
	})
}
