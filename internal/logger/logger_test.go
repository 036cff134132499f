package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		SetLevel("INFO")
		require.NoError(t, Init(Config{Format: "text", Output: "stdout"}))
	})
}

func TestSetLevel_FiltersBelowLevel(t *testing.T) {
	resetLogger(t)

	var buf bytes.Buffer
	SetOutput(&buf, "text")
	SetLevel("warn")

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "warn 3")
	assert.Contains(t, out, "error 4")
	assert.Equal(t, LevelWarn, CurrentLevel())
}

func TestSetLevel_UnknownIgnored(t *testing.T) {
	resetLogger(t)

	SetLevel("DEBUG")
	SetLevel("chatty")
	assert.Equal(t, LevelDebug, CurrentLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   Level
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warn", LevelWarn, true},
		{"ERROR", LevelError, true},
		{"trace", LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		if ok {
			assert.Equal(t, strings.ToUpper(tt.in), got.String())
		}
	}
}

func TestTextFormat(t *testing.T) {
	resetLogger(t)

	var buf bytes.Buffer
	SetOutput(&buf, "text")
	Info("[stats] processed=%d", 7)

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "INFO")
	assert.True(t, strings.HasSuffix(line, "[stats] processed=7"), line)
}

func TestJSONFormat(t *testing.T) {
	resetLogger(t)

	var buf bytes.Buffer
	SetOutput(&buf, "json")
	Warn("queue %s", "full")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "queue full", entry["msg"])
	assert.Contains(t, entry, "ts")
}

func TestInit_FileOutput(t *testing.T) {
	resetLogger(t)

	path := filepath.Join(t.TempDir(), "linepool.log")
	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))

	Info("written to file")
	require.NoError(t, Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "written to file")
}

func TestInit_BadFilePath(t *testing.T) {
	resetLogger(t)

	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
