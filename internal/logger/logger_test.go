package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("prod", "info", &buf)

	log.Info().Str("user_id", "7").Msg("login")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "login", line["message"])
	assert.Equal(t, "7", line["user_id"])
	assert.Equal(t, "library-auth", line["service"])
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("prod", "warn", &buf)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("prod", "nonsense", &buf)

	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
