package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogTransportWritesSeverityAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	tr := NewLogTransport(logger)

	err := tr.Send(context.Background(), Message{
		Severity: SeverityCritical,
		Source:   "self_healing",
		Title:    "disk_pressure",
		Detail:   "escalated to tier 2",
		Fields:   map[string]any{"target_id": "disk:/var"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) {
		t.Fatalf("expected error level, got %s", out)
	}
	if !strings.Contains(out, "disk:/var") {
		t.Fatalf("expected target_id field, got %s", out)
	}
}

func TestMultiTransportFansOutAndReportsFirstError(t *testing.T) {
	var buf bytes.Buffer
	ok := NewLogTransport(zerolog.New(&buf))
	failing := failTransport{}

	mt := NewMultiTransport(failing, ok)
	err := mt.Send(context.Background(), Message{Severity: SeverityInfo, Source: "trust_gate", Title: "t"})
	if err == nil {
		t.Fatal("expected first transport's error to surface")
	}
	if buf.Len() == 0 {
		t.Fatal("expected the second transport to still run")
	}
}

type failTransport struct{}

func (failTransport) Send(context.Context, Message) error {
	return errAlways
}

var errAlways = &sendError{"always fails"}

type sendError struct{ msg string }

func (e *sendError) Error() string { return e.msg }
