package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose", nil); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("WARN", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Error(nil, "shown", "dest", "ghcr.io/x:1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", out)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v (%s)", err, lines[0])
	}
	if entry["msg"] != "shown" || entry["dest"] != "ghcr.io/x:1" || entry["level"] != "error" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewDebugEmitsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.V(1).Info("event", "requestType", "Create")
	if !strings.Contains(buf.String(), "requestType") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}
