package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used across snapcut. Arguments after the
// message are alternating key/value pairs.
type Logger interface {
	Info(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type StdLogger struct {
	internalLogger *slog.Logger
}

func New() Logger {
	l := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return &StdLogger{internalLogger: l}
}

// Discard returns a Logger that drops everything. Handy in tests.
func Discard() Logger {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &StdLogger{internalLogger: l}
}

func (l *StdLogger) Info(msg string, args ...interface{}) {
	l.internalLogger.Info(msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	l.internalLogger.Debug(msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...interface{}) {
	l.internalLogger.Warn(msg, args...)
}

func (l *StdLogger) Error(msg string, args ...interface{}) {
	l.internalLogger.Error(msg, args...)
}

// LogrusLogger adapts a logrus logger to Logger. The CLI uses it so log
// output can be redirected to a file.
type LogrusLogger struct {
	internalLogger *logrus.Logger
}

func NewLogrus(out io.Writer, debug bool) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &LogrusLogger{internalLogger: l}
}

func (l *LogrusLogger) Info(msg string, args ...interface{}) {
	l.internalLogger.WithFields(fields(args)).Info(msg)
}

func (l *LogrusLogger) Debug(msg string, args ...interface{}) {
	l.internalLogger.WithFields(fields(args)).Debug(msg)
}

func (l *LogrusLogger) Warn(msg string, args ...interface{}) {
	l.internalLogger.WithFields(fields(args)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, args ...interface{}) {
	l.internalLogger.WithFields(fields(args)).Error(msg)
}

// fields turns slog-style key/value pairs into logrus fields. A dangling
// value is kept under "!BADKEY", mirroring slog.
func fields(args []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		f[key] = args[i+1]
	}
	return f
}
