package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	require.NotNil(t, log)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNewDefaultWriter(t *testing.T) {
	// nil writer should fall back to the stderr console writer
	log := New(nil, "info")
	require.NotNil(t, log)
}

func TestSubChain(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")

	log.Sub("pipeline").Sub("worker").Info().Msg("nested")
	output := buf.String()
	assert.Contains(t, output, "nested")
	assert.Contains(t, output, "worker")
}

func TestWithStr(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")

	tagged := log.WithStr("client", "visitor-7")
	tagged.Info().Msg("first")
	tagged.Info().Msg("second")

	output := buf.String()
	assert.Contains(t, output, "first")
	assert.Contains(t, output, "second")
	// The field rides on every line without being restated.
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("visitor-7")))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug().Msg("debug msg")
	log.Info().Msg("info msg")
	assert.Empty(t, buf.String(), "below-threshold levels should be dropped")

	log.Warn().Msg("warn msg")
	assert.Contains(t, buf.String(), "warn msg")

	buf.Reset()
	log.Error().Msg("error msg")
	assert.Contains(t, buf.String(), "error msg")
}

func TestSilentLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "silent")

	log.Debug().Msg("no")
	log.Info().Msg("no")
	log.Warn().Msg("no")
	log.Error().Msg("no")

	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"silent", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel}, // env overrides arrive uppercased
		{"Warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}
