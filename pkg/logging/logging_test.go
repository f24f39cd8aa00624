package logging

import (
	"bytes"
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
		// Lowercase
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},

		// Uppercase
		{"DEBUG", LevelDebug},
		{"INFO", LevelInfo},
		{"WARN", LevelWarn},
		{"WARNING", LevelWarn},
		{"ERROR", LevelError},

		// Mixed case
		{"Debug", LevelDebug},
		{"Info", LevelInfo},
		{"Warn", LevelWarn},
		{"Warning", LevelWarn},
		{"Error", LevelError},
		{"dEbUg", LevelDebug},

		// Empty string defaults to Info
		{"", LevelInfo},

		// Unrecognized defaults to Info
		{"trace", LevelInfo},
		{"fatal", LevelInfo},
		{"unknown", LevelInfo},
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

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"Json", FormatJSON},
		{"text", FormatText},
		{"TEXT", FormatText},
		{"", FormatText},
		{"yaml", FormatText}, // unrecognized defaults to text
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseFormat(tt.input)
			if result != tt.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestOpen_WritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "dserver.log")

	logger, closer, err := Open(Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: &console,
		File:   path,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	logger.Info("source loaded", "source", "accounts")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for name, out := range map[string]string{"console": console.String(), "file": string(data)} {
		if !strings.Contains(out, "source=accounts") {
			t.Errorf("%s output missing record: %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output contains debug record", name)
		}
	}
}

func TestOpen_NoFile(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := Open(Config{Format: FormatJSON, Output: &console})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	logger.Warn("flush failed")
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !strings.Contains(console.String(), `"msg":"flush failed"`) {
		t.Errorf("unexpected output %q", console.String())
	}
}

func TestVerbosityLevel(t *testing.T) {
	if got := VerbosityLevel(LevelWarn, 0); got != LevelWarn {
		t.Errorf("VerbosityLevel(warn, 0) = %v", got)
	}
	if got := VerbosityLevel(LevelWarn, 2); got != LevelDebug {
		t.Errorf("VerbosityLevel(warn, 2) = %v", got)
	}
}
