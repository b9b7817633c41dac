package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log, closeLog, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer closeLog()

	log.Info().Msg("hidden")
	log.Warn().Int("cycle", 2).Msg("measurement failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "measurement failed", entry["message"])
	assert.EqualValues(t, 2, entry["cycle"])
	assert.Contains(t, entry, "time")
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Config{Pretty: true}, &buf)
	require.NoError(t, err)
	log.Debug().Msg("hidden")
	log.Info().Msg("run started")
	assert.Contains(t, buf.String(), "run started")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer
	log, closeLog, err := New(Config{Level: "debug", File: path}, &buf)
	require.NoError(t, err)
	log.Debug().Msg("to both")
	require.NoError(t, closeLog())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestBadLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
