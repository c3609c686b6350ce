package internal

import (
	"fmt"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

var baseLogger = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000000Z07:00",
	})
	return logger
}

// ConfigureLogging applies level and format to every logger created by NewLogger.
func ConfigureLogging(cfg LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	baseLogger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
	case "json":
		baseLogger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	return nil
}

func NewLogger(component string) *logrus.Entry {
	name := "gitevents"
	if component != "" {
		name = name + "/" + component
	}
	return baseLogger.WithField("component", name)
}

func WithRequestID(logger *logrus.Entry, requestID string) *logrus.Entry {
	if logger == nil {
		logger = NewLogger("")
	}
	if requestID == "" {
		return logger
	}
	return logger.WithField("request_id", requestID)
}

// watermillLogger bridges Watermill's logger onto logrus.
type watermillLogger struct {
	entry *logrus.Entry
}

func NewWatermillLogger(entry *logrus.Entry) watermill.LoggerAdapter {
	if entry == nil {
		entry = NewLogger("publisher")
	}
	return watermillLogger{entry: entry}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.withFields(fields).WithError(err).Error(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.withFields(fields).Info(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.withFields(fields).Debug(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.withFields(fields).Trace(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{entry: l.withFields(fields)}
}

func (l watermillLogger) withFields(fields watermill.LogFields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}
