package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func captureLogger(level logrus.Level) *bytes.Buffer {
	var buf bytes.Buffer
	Logger = logrus.New()
	Logger.SetOutput(&buf)
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return &buf
}

func TestInit(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"info level", "info", logrus.InfoLevel},
		{"warn level", "warn", logrus.WarnLevel},
		{"error level", "error", logrus.ErrorLevel},
		{"unknown level defaults to info", "verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = logrus.New()
			if err := Init(tt.level, ""); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if Logger.GetLevel() != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, Logger.GetLevel())
			}
		})
	}
}

func TestInit_WithNestedLogFile(t *testing.T) {
	Logger = logrus.New()
	logFile := filepath.Join(t.TempDir(), "logs", "nested", "deepfakery.log")

	if err := Init("info", logFile); err != nil {
		t.Fatalf("Init with log file failed: %v", err)
	}
	defer Close()

	Info("written to file")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Error("message not found in log file")
	}
}

func TestSetLevel_IgnoresUnknown(t *testing.T) {
	Logger = logrus.New()
	SetLevel("warn")
	SetLevel("loud")
	if Logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("expected level to stay warn, got %v", Logger.GetLevel())
	}
}

func TestIsDebug(t *testing.T) {
	captureLogger(logrus.InfoLevel)
	if IsDebug() {
		t.Error("IsDebug should be false at info level")
	}
	SetLevel("debug")
	if !IsDebug() {
		t.Error("IsDebug should be true at debug level")
	}
}

func TestLogLevel_Filtering(t *testing.T) {
	buf := captureLogger(logrus.WarnLevel)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	if buf.Len() > 0 {
		t.Errorf("debug/info should be filtered at warn level, got %q", buf.String())
	}

	Warnf("warn %d", 3)
	if !strings.Contains(buf.String(), "warn 3") {
		t.Error("Warnf message not logged")
	}

	buf.Reset()
	Errorf("error %s", "occurred")
	if !strings.Contains(buf.String(), "error occurred") {
		t.Error("Errorf message not logged")
	}
}

func TestComponent(t *testing.T) {
	buf := captureLogger(logrus.InfoLevel)

	Component("provision").Info("initialized")

	output := buf.String()
	if !strings.Contains(output, "component=provision") {
		t.Error("component field not in output")
	}
}

func TestJob(t *testing.T) {
	buf := captureLogger(logrus.InfoLevel)

	Job("abc-123", "photo").Info("job started")

	output := buf.String()
	for _, want := range []string{"job=abc-123", "kind=photo", "component=pipeline", "job started"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output %q", want, output)
		}
	}
}

func TestWithError(t *testing.T) {
	buf := captureLogger(logrus.ErrorLevel)

	WithError(os.ErrNotExist).Error("operation failed")

	if !strings.Contains(buf.String(), "file does not exist") {
		t.Error("error not in output")
	}
}

func BenchmarkWithFields(b *testing.B) {
	Logger = logrus.New()
	Logger.SetOutput(&bytes.Buffer{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WithFields(Fields{"frame": i, "faces": 2}).Info("message")
	}
}
