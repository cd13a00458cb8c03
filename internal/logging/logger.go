package logging

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// Configure applies level and output to the default logrus logger.
func Configure(level string, out io.Writer) {
	base.SetLevel(parseLevel(level))
	if out != nil {
		base.SetOutput(out)
	}
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

// NewLogger returns a logger for ctx from the installed factory, falling
// back to logrus.
func NewLogger(ctx context.Context) Logger {
	factory := GetLoggerFactory()
	if factory != nil {
		return factory.CreateLogger(ctx)
	}

	return newLogrusLogger(ctx)
}

func newLogrusLogger(ctx context.Context) Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := base.WithContext(ctx)
	if runID := RunID(ctx); runID != "" {
		entry = entry.WithField("run_id", runID)
	}
	return &logrusLogger{entry: entry}
}
