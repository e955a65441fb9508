package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWritesAtLevel(t *testing.T) {
	t.Cleanup(func() { Init(Options{}) })

	var buf bytes.Buffer
	Init(Options{Enabled: true, Level: slog.LevelWarn, Writer: &buf})
	L.Info("hidden")
	L.Warn("shown", "k", 1)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "k=1")

	buf.Reset()
	Init(Options{})
	L.Error("dropped")
	require.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		level   slog.Level
		enabled bool
	}{
		{"", slog.LevelInfo, false},
		{"off", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, enabled, err := ParseLevel(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.level, level)
			require.Equal(t, tt.enabled, enabled)
		})
	}

	_, _, err := ParseLevel("loud")
	require.Error(t, err)
}
