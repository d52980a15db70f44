package auth

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	log zerolog.Logger
}

// NewLogger adapts a zerolog logger to the package Logger interface.
func NewLogger(l zerolog.Logger) Logger {
	return zerologLogger{log: l}
}

func newDefaultLogger() Logger {
	l := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("component", "auth").
		Logger().
		Level(zerolog.InfoLevel)
	return zerologLogger{log: l}
}

func (z zerologLogger) Debug(msg string, args ...any) {
	z.emit(z.log.Debug(), msg, args)
}

func (z zerologLogger) Info(msg string, args ...any) {
	z.emit(z.log.Info(), msg, args)
}

func (z zerologLogger) Warn(msg string, args ...any) {
	z.emit(z.log.Warn(), msg, args)
}

func (z zerologLogger) Error(msg string, args ...any) {
	z.emit(z.log.Error(), msg, args)
}

func (z zerologLogger) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("arg", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, ok := args[i+1].(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything
func NopLogger() Logger { return nopLogger{} }

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return newDefaultLogger()
	}
	return l
}
