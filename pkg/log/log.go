package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging interface used by sessions, transports and the client.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerolog adapts a zerolog.Logger to the Logger interface.
func NewZerolog(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

// NewConsole returns a human readable logger writing to stdout.
func NewConsole(app string, level zerolog.Level) Logger {
	return NewConsoleWriter(os.Stdout, app, level)
}

// NewConsoleWriter returns a human readable logger writing to w.
func NewConsoleWriter(w io.Writer, app string, level zerolog.Level) Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	return NewZerolog(logger)
}

func (l *zerologLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *zerologLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *zerologLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *zerologLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil || raw == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
