package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("dropped", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatalf("derived logger with fields is not zero")
	}
}

func TestNewWriter_FieldsAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, "warn").With(String("comp", "test"))
	l.Info("hidden")
	l.Warn("shown", Int("id", 7), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json: %v", err)
	}
	if rec["message"] != "shown" || rec["comp"] != "test" || rec["id"] != float64(7) || rec["err"] != "boom" {
		t.Fatalf("record = %v", rec)
	}
	if !l.Enabled(LevelError) || l.Enabled(LevelInfo) {
		t.Fatalf("Enabled mismatch for warn logger")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "trace", "DEBUG", " info ", "warning", "error", "off"} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false", s)
		}
	}
	for _, s := range []string{"loud", "fatal"} {
		if ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = true", s)
		}
	}
}

func TestService_ApplyFileSink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "taskd.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("first")

	// Raising the level takes effect on loggers handed out earlier.
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("second")
	log.Error("third")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(b)
	if !strings.Contains(got, "first") || strings.Contains(got, "second") || !strings.Contains(got, "third") {
		t.Fatalf("log file = %q", got)
	}
}
