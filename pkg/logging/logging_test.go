package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithSink(Config{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("Invalid numeric constraint", zap.String("kind", "UnexpectedCharacter"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "Invalid numeric constraint", entry["msg"])
	assert.Equal(t, "UnexpectedCharacter", entry["kind"])
}

func TestNewConsoleDefaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithSink(Config{}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fieldrules.log")
	log, err := New(Config{Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("Loaded rules directory", zap.Int("rules", 3))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "Loaded rules directory", entry["msg"])
	assert.EqualValues(t, 3, entry["rules"])
}

func TestFileWriterDefaults(t *testing.T) {
	w := fileWriter(Config{File: "x.log"})
	assert.Equal(t, 100, w.MaxSize)
	assert.Equal(t, 0, w.MaxBackups)
}
