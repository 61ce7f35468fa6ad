// Package logx configures the relay's structured logging.
//
// Every package takes a zerolog.Logger and derives a child with a
// "component" field, so console output reads like:
//
//	2026-01-02T15:04:05.000Z INF registered component=server kind=tv id=tv-1
//
// Format "json" switches to one JSON object per line for log shippers.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a root logger writing to w at the given level.
// Unknown levels fall back to info; unknown formats fall back to console.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	out := w
	if strings.ToLower(strings.TrimSpace(format)) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: !isTerminal(w)}
	}
	return zerolog.New(out).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Nop returns a logger that discards everything. Used as the default for
// components constructed without an explicit logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel maps a config string to a zerolog level.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// ValidLevel reports whether s names a level ParseLevel understands.
func ValidLevel(s string) bool {
	const sentinel = zerolog.Disabled
	return ParseLevel(s, sentinel) != sentinel
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
