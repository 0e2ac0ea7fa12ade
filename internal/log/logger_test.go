package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestStandardLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelDebug))

	logger.Debug("a debug message")
	if !strings.Contains(buf.String(), "[DEBUG]") || !strings.Contains(buf.String(), "a debug message") {
		t.Errorf("Debug logging failed, got: %s", buf.String())
	}
	buf.Reset()

	withFields := logger.WithFields(map[string]interface{}{"component": "test", "count": 123})
	withFields.Info("message with fields")
	output := buf.String()
	if !strings.Contains(output, "[INFO]") ||
		!strings.Contains(output, "message with fields") ||
		!strings.Contains(output, "component=test") ||
		!strings.Contains(output, "count=123") {
		t.Errorf("logging with fields failed, got: %s", output)
	}
	buf.Reset()

	logger.SetLevel(LevelError)
	logger.Debug("should not appear")
	logger.Warn("should not appear")
	logger.Error("should appear")
	output = buf.String()
	if strings.Contains(output, "should not appear") || !strings.Contains(output, "should appear") {
		t.Errorf("level filtering failed, got: %s", output)
	}

	if logger.GetLevel() != LevelError {
		t.Errorf("GetLevel = %v, want LevelError", logger.GetLevel())
	}
}

func TestWithFieldIsolatesParentLogger(t *testing.T) {
	var buf bytes.Buffer
	base := NewStandardLogger(WithOutput(&buf), WithLevel(LevelInfo))
	child := base.WithField("module", "logger")

	child.Info("child message")
	if !strings.Contains(buf.String(), "module=logger") {
		t.Errorf("child field missing, got: %s", buf.String())
	}
	buf.Reset()

	base.Info("parent message")
	if strings.Contains(buf.String(), "module=logger") {
		t.Errorf("WithField leaked a field onto the parent logger: %s", buf.String())
	}
}

func TestDefaultLogger(t *testing.T) {
	original := defaultLogger
	defer func() { defaultLogger = original }()

	var buf bytes.Buffer
	SetDefaultLogger(NewStandardLogger(WithOutput(&buf), WithLevel(LevelInfo)))

	GetDefaultLogger().Info("default logger message")
	if !strings.Contains(buf.String(), "default logger message") {
		t.Errorf("GetDefaultLogger did not return the replaced logger, got: %s", buf.String())
	}
}
