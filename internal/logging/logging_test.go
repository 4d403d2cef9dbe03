package logging

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNew_LevelAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New("warn", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.WithField("op", "create").Info("hidden")
	logger.WithFields(log.Fields{"op": "delete", "task": "t1"}).Warn("rolled back")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %q", out)
	}
	for _, want := range []string{"level=warning", "op=delete", "task=t1", `msg="rolled back"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestNew_DefaultsAndErrors(t *testing.T) {
	t.Parallel()

	logger, err := New("", &bytes.Buffer{})
	if err != nil || logger.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info default, got %v (%v)", logger.GetLevel(), err)
	}
	if _, err := New("chatty", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if Discard().Out == nil {
		t.Fatalf("discard logger should have an output")
	}
}
