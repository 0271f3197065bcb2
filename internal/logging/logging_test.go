package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func journalEnv(k string) string {
	if k == "JOURNAL_STREAM" {
		return "8:12345"
	}
	return ""
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseFormat(" Tint"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatAuto, ParseFormat("yaml"))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Level("", true))
	assert.Equal(t, slog.LevelInfo, Level("", false))
	assert.Equal(t, slog.LevelWarn, Level("WARN", true))
	assert.Equal(t, slog.LevelInfo, Level("loud", true))
}

func TestNonTTYAutoIsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, FormatAuto, slog.LevelInfo, noEnv))
	log.Debug("hidden")
	log.Info("history restored", "entries", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "history restored", rec["msg"])
	assert.EqualValues(t, 3, rec["entries"])
	assert.Contains(t, rec, "time")
}

func TestContentIsRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, FormatJSON, slog.LevelDebug, noEnv))
	log.Debug("entry captured", "id", 7, "text", "hunter2", "data", []byte{1, 2, 3, 4})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "[7 bytes]", rec["text"])
	assert.Equal(t, "[4 bytes]", rec["data"])
	assert.EqualValues(t, 7, rec["id"])
	assert.NotContains(t, buf.String(), "hunter2")

	buf.Reset()
	log = slog.New(newHandler(&buf, FormatText, slog.LevelDebug, noEnv))
	log.Info("paste", "content", "s3cret token", "preview", "abc…")
	assert.NotContains(t, buf.String(), "s3cret")
	assert.Contains(t, buf.String(), "[12 bytes]")
	assert.Contains(t, buf.String(), "abc…", "debug previews are kept")
}

func TestJournalDropsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, FormatJSON, slog.LevelInfo, journalEnv))
	log.Info("engine started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "time")
	assert.Equal(t, "engine started", rec["msg"])
}

func TestJournalAutoIsPlainText(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, FormatAuto, slog.LevelDebug, journalEnv))
	log.Debug("hotkey activated", "chord", "super+v")
	assert.Contains(t, buf.String(), "hotkey activated")
	assert.Contains(t, buf.String(), "super+v")
	assert.NotContains(t, buf.String(), "\x1b[", "no color escapes in the journal")
	assert.False(t, IsTTY(&buf))
}
