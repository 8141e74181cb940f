package logger_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/pixellens/internal/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"INFO":  zerolog.InfoLevel,
		"error": zerolog.ErrorLevel,
		"warn":  zerolog.WarnLevel,
		"":      zerolog.WarnLevel,
		"loud":  zerolog.WarnLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}

func TestConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Options{Level: "info", Console: &buf})

	l.Debug("hidden")
	l.Info("step settled", "step", "checkout")
	l.Err(errors.New("boom"), "action failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "step settled")
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "boom")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixellens.log")
	l := logger.New(logger.Options{Level: "debug", File: path, Quiet: true})
	l.With("case", "homepage").Warn("window slop", "late", 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"case":"homepage"`)
	assert.Contains(t, string(data), `"late":2`)
}

func TestNopDiscards(t *testing.T) {
	var l logger.Logger = logger.Nop()
	l.Info("nothing")
	l.Err(errors.New("x"), "nothing")
}
