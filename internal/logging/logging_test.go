// SPDX-License-Identifier: AGPL-3.0-only
package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf, Level: Warn})

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Errorf("Expected warn and error records, got %q", out)
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf, Level: Debug}).WithField("query_id", "q-1")

	logger.Infof("running")

	if !strings.Contains(buf.String(), "query_id=q-1") {
		t.Errorf("Expected field in record, got %q", buf.String())
	}
}

func TestFatalfExits(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf, Level: Error})
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatalf("boom")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "FATAL") {
		t.Errorf("Expected FATAL level label, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   Debug,
		"INFO":    Info,
		"warning": Warn,
		"error":   Error,
		"fatal":   Fatal,
		"bogus":   Info,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omoikane.log")
	logger, err := FileLogger(path, Info)
	if err != nil {
		t.Fatalf("FileLogger: %v", err)
	}
	logger.Infof("hello file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("Expected record in log file, got %q", string(data))
	}
}

func TestDefaultLogger(t *testing.T) {
	orig := GetDefaultLogger()
	defer SetDefaultLogger(orig)

	custom := New(Options{Level: Error})
	SetDefaultLogger(custom)
	if GetDefaultLogger() != custom {
		t.Error("Expected SetDefaultLogger to replace the default logger")
	}

	SetDefaultLogger(nil)
	if GetDefaultLogger() != custom {
		t.Error("Expected SetDefaultLogger(nil) to be ignored")
	}
}
