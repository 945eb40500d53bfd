// Package logging is the process-wide logger for deepfakery.
// Every package logs through it so that the --debug flag and the
// logging section of the config apply everywhere.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger is the application-wide logger instance.
var Logger *logrus.Logger

// Fields is an alias for logrus.Fields for convenience.
type Fields = logrus.Fields

// Entry is an alias for logrus.Entry so callers don't import logrus directly.
type Entry = logrus.Entry

var logFile *os.File

func init() {
	Logger = logrus.New()
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
}

// parseLevel maps a config level to logrus. Unknown values fall back to info.
func parseLevel(level string) (logrus.Level, bool) {
	switch level {
	case "debug":
		return logrus.DebugLevel, true
	case "info":
		return logrus.InfoLevel, true
	case "warn":
		return logrus.WarnLevel, true
	case "error":
		return logrus.ErrorLevel, true
	}
	return logrus.InfoLevel, false
}

// Init sets the level and, when logPath is non-empty, tees output to that file.
func Init(level string, logPath string) error {
	lvl, _ := parseLevel(level)
	Logger.SetLevel(lvl)

	if logPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	Close()
	logFile = file
	Logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return nil
}

// Close releases the log file opened by Init, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
		Logger.SetOutput(os.Stderr)
	}
}

// SetLevel sets the logging level. Unknown levels are ignored.
func SetLevel(level string) {
	if lvl, ok := parseLevel(level); ok {
		Logger.SetLevel(lvl)
	}
}

// IsDebug reports whether debug logging is enabled.
func IsDebug() bool {
	return Logger.IsLevelEnabled(logrus.DebugLevel)
}

// Debug logs a debug message.
func Debug(args ...interface{}) {
	Logger.Debug(args...)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

// Info logs an info message.
func Info(args ...interface{}) {
	Logger.Info(args...)
}

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

// Warn logs a warning message.
func Warn(args ...interface{}) {
	Logger.Warn(args...)
}

// Warnf logs a formatted warning message.
func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	Logger.Error(args...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

// WithFields returns an entry with fields attached.
func WithFields(fields Fields) *Entry {
	return Logger.WithFields(fields)
}

// WithField returns an entry with a single field attached.
func WithField(key string, value interface{}) *Entry {
	return Logger.WithField(key, value)
}

// WithError returns an entry with an error attached.
func WithError(err error) *Entry {
	return Logger.WithError(err)
}

// Component returns a logger entry for a specific component.
func Component(name string) *Entry {
	return Logger.WithField("component", name)
}

// Job returns a logger entry tagged with a job id and kind ("photo", "video").
func Job(id, kind string) *Entry {
	return Logger.WithFields(Fields{
		"component": "pipeline",
		"job":       id,
		"kind":      kind,
	})
}
