package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Event Tests
// =============================================================================

func TestU_NewEvent_Creation(t *testing.T) {
	event := NewEvent(EventDataSigned, ResultSuccess)

	if event.EventType != EventDataSigned {
		t.Errorf("expected EventType=%s, got %s", EventDataSigned, event.EventType)
	}
	if event.Result != ResultSuccess {
		t.Errorf("expected Result=%s, got %s", ResultSuccess, event.Result)
	}
	if event.Timestamp == "" {
		t.Error("Timestamp should not be empty")
	}
	if event.Actor.Type != "user" {
		t.Errorf("expected Actor.Type=user, got %s", event.Actor.Type)
	}
}

func TestU_Event_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   *Event
		wantErr bool
	}{
		{
			name:    "valid event",
			event:   NewEvent(EventKeyPairGenerated, ResultSuccess),
			wantErr: false,
		},
		{
			name: "missing event_type",
			event: &Event{
				Timestamp: "2026-01-15T10:00:00Z",
				Actor:     Actor{Type: "user", ID: "admin"},
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "missing actor",
			event: &Event{
				EventType: EventSessionOpened,
				Timestamp: "2026-01-15T10:00:00Z",
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "missing result",
			event: &Event{
				EventType: EventSessionOpened,
				Timestamp: "2026-01-15T10:00:00Z",
				Actor:     Actor{Type: "user", ID: "admin"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestU_Event_CanonicalJSON_ExcludesHash(t *testing.T) {
	event := NewEvent(EventDataSigned, ResultSuccess)
	event.Hash = "sha256:something"

	canonical, err := event.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if strings.Contains(string(canonical), "sha256:something") {
		t.Error("canonical form must not contain the event's own hash")
	}

	var m map[string]interface{}
	if err := json.Unmarshal(canonical, &m); err != nil {
		t.Fatalf("canonical form is not JSON: %v", err)
	}
	if _, ok := m["hash"]; ok {
		t.Error("canonical form must not have a hash field")
	}
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestU_NopWriter(t *testing.T) {
	var w NopWriter
	if err := w.Write(NewEvent(EventSessionOpened, ResultSuccess)); err != nil {
		t.Errorf("NopWriter.Write: %v", err)
	}
	if w.LastHash() != GenesisHash {
		t.Errorf("LastHash = %q, want genesis", w.LastHash())
	}
}

func TestU_FileWriter_HashChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	events := []EventType{EventSessionOpened, EventKeyPairGenerated, EventDataSigned}
	for _, et := range events {
		if err := w.Write(NewEvent(et, ResultSuccess)); err != nil {
			t.Fatalf("Write(%s): %v", et, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n, err := VerifyChain(path)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if n != len(events) {
		t.Errorf("verified %d events, want %d", n, len(events))
	}
}

func TestU_FileWriter_ChainContinuity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w1, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if err := w1.Write(NewEvent(EventSessionOpened, ResultSuccess)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	first := w1.LastHash()
	if err := w1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A new writer on the same file continues the chain.
	w2, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if w2.LastHash() != first {
		t.Errorf("reopened LastHash = %q, want %q", w2.LastHash(), first)
	}
	if err := w2.Write(NewEvent(EventSessionClosed, ResultSuccess)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n, err := VerifyChain(path); err != nil || n != 2 {
		t.Errorf("VerifyChain = (%d, %v), want (2, nil)", n, err)
	}
}

func TestU_VerifyChain_DetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(NewEvent(EventDataSigned, ResultSuccess)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	tampered := strings.Replace(string(data), `"result":"success"`, `"result":"failure"`, 1)
	if tampered == string(data) {
		t.Fatal("tampering had no effect")
	}
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := VerifyChain(path); err == nil {
		t.Error("tampered chain verified")
	}
}

func TestU_MultiWriter_FailsIfAnyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer func() { _ = fw.Close() }()

	mw := NewMultiWriter(fw, NopWriter{})
	if err := mw.Write(NewEvent(EventSessionOpened, ResultSuccess)); err != nil {
		t.Fatalf("MultiWriter.Write: %v", err)
	}

	// An invalid event fails the multi write.
	if err := mw.Write(&Event{}); err == nil {
		t.Error("invalid event accepted")
	}
}
