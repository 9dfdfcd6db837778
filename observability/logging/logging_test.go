package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "vitrined", Env: "test"})
	logger.Info("purchase completed", "sequence", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" {
		t.Fatalf("unexpected severity %v", line["severity"])
	}
}

func TestLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "vitrined", Level: slog.LevelWarn})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %s", buf.String())
	}
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitrined.log")
	logger, closer := SetupWithOptions(Options{Service: "vitrined", File: path})
	logger.Warn("snapshot written")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Contains(data, []byte("snapshot written")) {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestMaskField(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	if got := MaskField("persona", hash).Value.String(); got != hash[:10]+"…" {
		t.Fatalf("expected persona fingerprint, got %s", got)
	}
	if got := MaskField("Hash", "0x12").Value.String(); got != RedactedValue {
		t.Fatalf("expected short hash to be redacted, got %s", got)
	}
	if got := MaskField("outcome", "success").Value.String(); got != "success" {
		t.Fatalf("expected non-sensitive key to pass through, got %s", got)
	}
	if got := MaskValue(" "); got != " " {
		t.Fatalf("expected empty value unchanged")
	}
}

func TestLoggerRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "vitrined"})
	hash := "0x" + strings.Repeat("cd", 32)
	logger.Info("persona bound", "token", "eyJhbGciOi", "persona", hash, "sequence", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["token"] != RedactedValue {
		t.Fatalf("token leaked: %v", line["token"])
	}
	if line["persona"] != hash[:10]+"…" {
		t.Fatalf("unexpected persona value %v", line["persona"])
	}
	if line["sequence"] != float64(3) {
		t.Fatalf("unexpected sequence %v", line["sequence"])
	}
}
