package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"trace", LevelTrace},
		{"DETAIL", LevelDetail},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLevelOrdering(t *testing.T) {
	order := []Level{LevelTrace, LevelDetail, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("Expected %s below %s", order[i-1], order[i])
		}
	}
}

func TestLoggerFiltersAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelDetail, &buf, "server").WithPrefix("conn")

	l.Trace("hidden %d", 1)
	l.Detail("thread started %d", 2)
	l.Warn("careful")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Trace should be filtered at DETAIL level: %q", out)
	}
	if !strings.Contains(out, "[DETAIL] [server:conn] thread started 2") {
		t.Errorf("Expected detail line with prefix, got %q", out)
	}
	if !strings.Contains(out, "[WARN] [server:conn] careful") {
		t.Errorf("Expected warn line, got %q", out)
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	if l.Enabled(LevelError) {
		t.Error("Nop logger should not be enabled")
	}

	var nilLogger *Logger
	nilLogger.Info("must not panic")
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	l, err := New(LevelInfo, path, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("written")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] written") {
		t.Errorf("Expected log line in file, got %q", data)
	}
}

func TestWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelDebug, &buf, "gin")
	w := l.Writer(LevelDebug)

	_, _ = w.Write([]byte("first\nsecond\n"))

	if got := strings.Count(buf.String(), "[DEBUG] [gin]"); got != 2 {
		t.Errorf("Expected 2 lines, got %d: %q", got, buf.String())
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf, "client")
	s := slog.New(NewSlogHandler(l)).WithGroup("conn")

	s.Debug("filtered")
	s.Info("connected", "addr", "127.0.0.1:13750")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Errorf("Debug record should be filtered: %q", out)
	}
	if !strings.Contains(out, "connected conn.addr=127.0.0.1:13750") {
		t.Errorf("Expected grouped attr, got %q", out)
	}
}
