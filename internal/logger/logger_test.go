package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestInfo_WritesStructuredJSON(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("sync complete", zap.String("connection_id", "conn-1"), zap.Int("pages", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sync complete", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "conn-1", entry["connection_id"])
	assert.EqualValues(t, 3, entry["pages"])
	assert.Contains(t, entry, "timestamp")
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("hidden")

	assert.Empty(t, buf.String())
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("page fetched", zap.Int("items", 50))

	assert.Contains(t, buf.String(), "page fetched")
}

func TestInit_Levels(t *testing.T) {
	defer func() {
		require.NoError(t, Init("info"))
		reset()
	}()

	var buf bytes.Buffer
	SetOutput(&buf)
	require.NoError(t, Init("error"))

	Warn("not shown")
	Error("shown")

	out := buf.String()
	assert.NotContains(t, out, "not shown")
	assert.Equal(t, 1, strings.Count(out, "shown"))
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	defer reset()

	require.NoError(t, Init("chatty"))
	assert.False(t, IsVerbose())
	assert.True(t, level.Enabled(zap.InfoLevel))
}

func TestWith_CarriesFields(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	With(zap.String("component", "scheduler")).Warn("tick skipped")

	assert.Contains(t, buf.String(), `"component":"scheduler"`)
}
