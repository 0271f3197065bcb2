// Package logging configures the global slog logger for clipring binaries.
//
// Raw clipboard payloads are never logged: attributes carrying entry content
// are reduced to their size before any handler sees them.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ContentKeys are attribute keys whose values are raw clipboard payloads.
// Truncated debug previews are logged under "preview" and pass through.
var ContentKeys = []string{"content", "text", "data"}

// ParseFormat maps a --log-format value to a Format. Unknown values mean
// auto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	}
	return FormatAuto
}

// Level resolves --log-level. An empty value picks debug for a daemon run in
// the foreground and info otherwise; unknown values fall back to info.
func Level(s string, interactive bool) slog.Level {
	if s == "" {
		if interactive {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// underJournal reports whether stderr is connected to the systemd journal,
// as it is when the daemon runs as a user service.
func underJournal(getenv func(string) string) bool {
	return getenv("JOURNAL_STREAM") != ""
}

// NewHandler returns a colored handler for terminals and text output, JSON
// otherwise. Content attributes are redacted in both.
func NewHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	return newHandler(w, format, level, os.Getenv)
}

func newHandler(w io.Writer, format Format, level slog.Level, getenv func(string) string) slog.Handler {
	journal := underJournal(getenv)
	replace := func(groups []string, a slog.Attr) slog.Attr {
		// The journal stamps every line itself.
		if journal && len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return redact(a)
	}
	if format == FormatText || (format == FormatAuto && (IsTTY(w) || journal)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:       level,
			TimeFormat:  "15:04:05.000",
			NoColor:     !IsTTY(w),
			ReplaceAttr: replace,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replace})
}

func redact(a slog.Attr) slog.Attr {
	for _, k := range ContentKeys {
		if a.Key != k {
			continue
		}
		switch v := a.Value.Any().(type) {
		case string:
			return slog.String(a.Key, fmt.Sprintf("[%d bytes]", len(v)))
		case []byte:
			return slog.String(a.Key, fmt.Sprintf("[%d bytes]", len(v)))
		case fmt.Stringer:
			return slog.String(a.Key, fmt.Sprintf("[%d bytes]", len(v.String())))
		}
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// Setup installs the global logger on stderr. Call once after flag parsing.
func Setup(format Format, level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, level)))
}
