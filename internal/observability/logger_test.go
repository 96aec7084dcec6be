package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test", LevelInfo)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.WithFields(map[string]interface{}{"run_id": "r1", "flow": "periodic"}).Info("checkpoint saved")
	line := buf.String()
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "checkpoint saved flow=periodic run_id=r1")

	buf.Reset()
	logger.SetLevel(LevelError)
	logger.Warnf("gap %d..%d", 1, 2)
	assert.Empty(t, buf.String())
	logger.Errorf("upload failed: %s", "boom")
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestLogger_DerivedLoggersShareOutput(t *testing.T) {
	logger := NewLogger("test", LevelInfo)
	child := logger.WithField("component", "server")

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	child.Info("started")

	assert.Contains(t, buf.String(), "component=server")
}

func TestLogger_ConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	logger := NewLogger("test", LevelInfo)

	logger.Configure(LevelDebug, FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Debug("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	// Closing twice is harmless
	assert.NoError(t, logger.Close())
}
