package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		level     string
		want      zerolog.Level
	}{
		{0, "", zerolog.WarnLevel},
		{0, "error", zerolog.ErrorLevel},
		{0, "disabled", zerolog.Disabled},
		{0, "bogus", zerolog.WarnLevel},
		{1, "error", zerolog.InfoLevel},
		{2, "", zerolog.DebugLevel},
		{5, "", zerolog.TraceLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.verbosity, tt.level), "verbosity=%d level=%q", tt.verbosity, tt.level)
	}
}

func TestSetupAndGet(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	var buf bytes.Buffer
	Setup(&buf, 1, "")
	l := Get("engine")
	l.Info().Msg("loaded")
	l.Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, "loaded")
	assert.Contains(t, out, "component=engine")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\x1b[", "non-terminal output is not colored")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
	assert.False(t, IsTerminal(nil))
}
