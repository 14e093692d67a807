package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, "user-42")

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["caller"] != "user-42" {
		t.Fatalf("unexpected caller: %v", entry["caller"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
	if err := LogEvent(ctx, " ", nil); err == nil {
		t.Fatal("expected error for blank event name")
	}
}

func TestSinkLogsEscrowEvents(t *testing.T) {
	buf := captureLog(t)

	Sink{}.Emit(context.Background(), escrow.Event{
		ID:         "01H",
		Type:       escrow.EventWithdrawedFunds,
		CampaignID: escrow.ID{1},
		Identity:   "creator",
		Amount:     15,
		At:         time.Unix(1700000000, 0),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["event"] != "escrow.WithdrawedFunds" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	fields := entry["fields"].(map[string]any)
	if fields["amount"] != float64(15) || fields["identity"] != "creator" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields["organization_id"]; ok {
		t.Fatal("zero organization id should be omitted")
	}
}
