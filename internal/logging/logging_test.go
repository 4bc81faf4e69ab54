package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/kiranshivaraju/memberbase/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logging.ParseLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, logging.ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel("bogus"))
}

func TestNewWithWriter_FiltersAndEncodesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(&buf, "warn")

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Str("tenant", "acme").Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "acme", entry["tenant"])
	assert.Equal(t, "kept", entry["message"])
	assert.Contains(t, entry, "time")
}
