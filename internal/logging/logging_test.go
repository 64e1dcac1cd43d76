package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"upper case", LogLevel("DEBUG"), slog.LevelDebug},
		{"unknown falls back to info", LogLevel("verbose"), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelWarn {
		t.Errorf("Expected default level %s, got %s", LevelWarn, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("Expected default output stderr, got %s", cfg.Output)
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatText}, &buf)

		logger.Info("hello", "key", "value")

		out := buf.String()
		if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "key=value") {
			t.Errorf("Unexpected text output: %q", out)
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, &buf)

		logger.Info("hello", "port", 22)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Output is not JSON: %v (%q)", err, buf.String())
		}
		if entry["msg"] != "hello" {
			t.Errorf("Expected msg hello, got %v", entry["msg"])
		}
		if entry["port"] != float64(22) {
			t.Errorf("Expected port 22, got %v", entry["port"])
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

		logger.Info("hidden")
		logger.Warn("shown")

		if strings.Contains(buf.String(), "hidden") {
			t.Error("info message should be filtered at warn level")
		}
		if !strings.Contains(buf.String(), "shown") {
			t.Error("warn message should be logged")
		}
	})
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dualscan.log")

	logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("Log file missing message: %q", string(data))
	}
}

func TestScopedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf)

	scoped := logger.WithComponent("scanner").WithScanID("abc").WithTarget("10.0.0.1").WithError(errors.New("boom"))
	scoped.Info("phase started")

	out := buf.String()
	for _, want := range []string{"component=scanner", "scan_id=abc", "target=10.0.0.1", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	buf.Reset()
	logger.DebugProbe("udp", 53, "open|filtered")
	out = buf.String()
	if !strings.Contains(out, "protocol=udp") || !strings.Contains(out, "port=53") {
		t.Errorf("Unexpected probe log: %q", out)
	}
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")
	InfoScan("scan started", "example.com", "ports", 10)
	ErrorScan("scan failed", "example.com", errors.New("nxdomain"))

	out := buf.String()
	for _, want := range []string{"msg=d", "msg=i", "msg=w", "msg=e", "target=example.com", "error=nxdomain"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output", want)
		}
	}
}
