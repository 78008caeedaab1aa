package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogForwardsToZerolog(t *testing.T) {
	var buf bytes.Buffer
	log := Slog(NewWithWriter(&buf, zerolog.InfoLevel))

	log.Debug("hidden")
	log.WithGroup("net").Warn("listening", "addr", ":19132")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "listening", line["message"])
	assert.Equal(t, ":19132", line["net.addr"])
}
