package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Levels maps the accepted flag values to levels.
var Levels = map[Level][]string{
	Debug: {"debug"},
	Info:  {"info"},
	Warn:  {"warn", "warning"},
	Error: {"error"},
}

type Format int

const (
	Text Format = iota
	JSON
)

var Formats = map[Format][]string{
	Text: {"text"},
	JSON: {"json"},
}

type Config struct {
	Level  Level
	Format Format
	Output io.Writer // defaults to stderr
}

// Logger is a leveled logger with printf style methods.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}

	if cfg.Format == Text {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(w).Level(cfg.Level.zerolog()).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

func (l Level) String() string {
	if names, ok := Levels[l]; ok {
		return names[0]
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel returns the level named s.
func ParseLevel(s string) (Level, error) {
	for l, names := range Levels {
		for _, name := range names {
			if strings.EqualFold(name, s) {
				return l, nil
			}
		}
	}
	return Info, fmt.Errorf("unknown log level %q", s)
}

// With returns a logger that adds the key/value pair to every entry.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}
