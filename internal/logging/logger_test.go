package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogger(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
	}()

	testCases := []struct {
		name      string
		level     LogLevel
		wantInfo  bool
		wantDebug bool
	}{
		{name: "Debug level", level: LevelDebug, wantInfo: true, wantDebug: true},
		{name: "Info level", level: LevelInfo, wantInfo: true, wantDebug: false},
		{name: "Warn level", level: LevelWarn, wantInfo: false, wantDebug: false},
		{name: "Error level", level: LevelError, wantInfo: false, wantDebug: false},
		{name: "Invalid level defaults to Info", level: LogLevel("invalid"), wantInfo: true, wantDebug: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetupLogger(&buf, tc.level)

			if defaultLogger == nil {
				t.Fatal("defaultLogger is nil after setup")
			}

			Info("info message")
			Debug("debug message")

			output := buf.String()
			assert.Equal(t, tc.wantInfo, strings.Contains(output, "info message"), "output: %s", output)
			assert.Equal(t, tc.wantDebug, strings.Contains(output, "debug message"), "output: %s", output)
		})
	}
}

func TestLevelFromEnv(t *testing.T) {
	testCases := []struct {
		name     string
		envValue string
		expected LogLevel
	}{
		{name: "Empty env defaults to info", envValue: "", expected: LevelInfo},
		{name: "Debug", envValue: "debug", expected: LevelDebug},
		{name: "Upper case is lowered", envValue: "WARN", expected: LevelWarn},
		{name: "Whitespace is trimmed", envValue: " error ", expected: LevelError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.envValue)
			assert.Equal(t, tc.expected, LevelFromEnv())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.slogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.slogLevel())
	assert.Equal(t, slog.LevelInfo, LogLevel("verbose").slogLevel())
}

func TestMaskSensitive(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty string", input: "", expected: "<not set>"},
		{name: "Short string", input: "abc", expected: "<set>"},
		{name: "Exactly 4 characters", input: "abcd", expected: "<set>"},
		{name: "Token-like string", input: "2Dn5j8fk39Dkf0s", expected: "2Dn5...***"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := MaskSensitive(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
	}()

	var buf bytes.Buffer
	SetupLogger(&buf, LevelDebug)

	tests := []struct {
		name    string
		logFunc func(string, ...any)
		level   string
		message string
	}{
		{name: "Debug logging", logFunc: Debug, level: "DEBUG", message: "debug message"},
		{name: "Info logging", logFunc: Info, level: "INFO", message: "info message"},
		{name: "Warn logging", logFunc: Warn, level: "WARN", message: "warn message"},
		{name: "Error logging", logFunc: Error, level: "ERROR", message: "error message"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			tc.logFunc(tc.message, "key", "value")

			output := buf.String()
			assert.Contains(t, output, "level="+tc.level)
			assert.Contains(t, output, tc.message)
			assert.Contains(t, output, "key=value")
		})
	}
}

func TestGetLogger(t *testing.T) {
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
}
