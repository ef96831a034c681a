package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop-analyzer/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{Level: "WARN", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log.Info().Msg("hidden")
	log.Warn().Int("frame", 4).Msg("no drop found on this frame")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(4), entry["frame"])
	assert.Equal(t, "no drop found on this frame", entry["message"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log.Info().Str("layer", "edge").Msg("cache reset")
	assert.Contains(t, buf.String(), "cache reset")
	assert.Contains(t, buf.String(), "layer=")
	assert.Contains(t, buf.String(), "edge")
}

func TestNewBadLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
