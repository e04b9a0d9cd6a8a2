package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("engine"))

	log.Info("points awarded",
		UserID("u1"),
		Points(25),
		Err(errors.New("boom")),
		Latency(1500*time.Millisecond),
	)

	m := decode(t, &buf)
	assert.Equal(t, "points awarded", m["message"])
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "engine", m["component"])
	assert.Equal(t, "u1", m["user_id"])
	assert.EqualValues(t, 25, m["points"])
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, "1.5s", m["latency"])
	assert.Contains(t, m, "timestamp")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Equal(t, "WARN", decode(t, &buf)["level"])
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "DEBUG", LevelDebug.String())
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("nothing", Err(nil)) })
}
