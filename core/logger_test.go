package core

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"testing"
)

// recordingLogger keeps formatted lines per level.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level LogLevel, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, formatLogLine(level, msg, fields))
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.add(LevelDebug, msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.add(LevelInfo, msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.add(LevelWarn, msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.add(LevelError, msg, fields) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, "["+level+"]") {
			n++
		}
	}
	return n
}

func TestFormatLogLine(t *testing.T) {
	got := formatLogLine(LevelWarn, "job rejected", []Field{F("pool", "p1"), F("job", "sum[0:4]")})
	want := "[WARN] job rejected {pool: p1, job: sum[0:4]}"
	if got != want {
		t.Errorf("formatLogLine = %q, want %q", got, want)
	}
	if got := formatLogLine(LevelInfo, "started", nil); got != "[INFO] started" {
		t.Errorf("formatLogLine = %q, want %q", got, "[INFO] started")
	}
}

// TestDefaultLogger_MinLevel verifies messages below the minimum are dropped
// Given: A DefaultLogger at Warn writing to a buffer
// When: One message per level is logged
// Then: Only Warn and Error reach the buffer
func TestDefaultLogger_MinLevel(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLeveledLogger(LevelWarn)
	logger.out = log.New(&buf, "", 0)

	// Act
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e", F("k", 1))

	// Assert
	want := "[WARN] w\n[ERROR] e {k: 1}\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultRejectedJobHandler(t *testing.T) {
	logger := &recordingLogger{}
	h := &DefaultRejectedJobHandler{Logger: logger}

	h.HandleRejectedJob("pool", "sum[0:4]", "shutting down")

	if logger.count("WARN") != 1 {
		t.Errorf("warn logs = %d, want 1", logger.count("WARN"))
	}
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-pool", 3, "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
}
