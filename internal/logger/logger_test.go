package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func capture(t *testing.T, fn func()) []map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(zerolog.DebugLevel)
	defer func() {
		SetOutput(nil)
		SetLevel(zerolog.WarnLevel)
	}()

	fn()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestInfo_EmitsJSON(t *testing.T) {
	entries := capture(t, func() {
		Info("something happened", map[string]interface{}{
			"count": 3,
		})
	})

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0]["message"] != "something happened" {
		t.Errorf("Expected message, got %v", entries[0]["message"])
	}
	if entries[0]["count"] != float64(3) {
		t.Errorf("Expected count field, got %v", entries[0]["count"])
	}
	if entries[0]["level"] != "info" {
		t.Errorf("Expected info level, got %v", entries[0]["level"])
	}
}

func TestSanitize_RedactsSensitiveFields(t *testing.T) {
	entries := capture(t, func() {
		Error("webhook failed", map[string]interface{}{
			"license_key": "ABCD-EFGH-IJKL-MNOP",
			"signature":   "sig",
			"email":       "user@example.com",
		})
	})

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	key, _ := entries[0]["license_key"].(string)
	if strings.Contains(key, "EFGH") {
		t.Errorf("Expected license key redacted, got %q", key)
	}
	if !strings.HasPrefix(key, "ABC") || !strings.HasSuffix(key, "NOP") {
		t.Errorf("Expected partial reveal of long secret, got %q", key)
	}

	if entries[0]["signature"] != "[REDACTED]" {
		t.Errorf("Expected short secret fully redacted, got %v", entries[0]["signature"])
	}

	if entries[0]["email"] != "user@example.com" {
		t.Errorf("Expected non-sensitive field untouched, got %v", entries[0]["email"])
	}
}

func TestLevel_FiltersBelow(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(zerolog.WarnLevel)

	Debug("too quiet")
	Info("still too quiet")
	Warn("loud enough")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Errorf("Expected debug/info suppressed at warn level")
	}
	if !strings.Contains(out, "loud enough") {
		t.Errorf("Expected warn entry emitted")
	}
}

func TestMergeFields(t *testing.T) {
	merged := mergeFields(
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)

	if merged["a"] != 1 {
		t.Errorf("Expected a=1, got %v", merged["a"])
	}
	if merged["b"] != 2 {
		t.Errorf("Expected later map to win, got %v", merged["b"])
	}
}
