package agentdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stagecall/voicedemo/internal/types"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := types.AgentRecord{
		AgentID:       "sales",
		PublicKey:     "pk_123",
		RemoteAgentID: "agent_abc",
	}
	if err := store.PutAgent(ctx, record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetAgent(ctx, "sales")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PublicKey != "pk_123" || got.RemoteAgentID != "agent_abc" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestMemoryStoreGetUnknownAgent(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetAgent(context.Background(), "ghost")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestMemoryStorePutRequiresAgentID(t *testing.T) {
	store := NewMemoryStore()

	if err := store.PutAgent(context.Background(), types.AgentRecord{PublicKey: "pk"}); err == nil {
		t.Error("expected error for record without agentId")
	}
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"sales", "support", "booking"} {
		if err := store.PutAgent(ctx, types.AgentRecord{AgentID: id, PublicKey: "pk", RemoteAgentID: "ra"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	records, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}

func TestMemoryStoreListCallable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	records := []types.AgentRecord{
		{AgentID: "sales", PublicKey: "pk", RemoteAgentID: "ra"},
		{AgentID: "draft", PublicKey: "pk"},
		{AgentID: "empty"},
	}
	for _, record := range records {
		if err := store.PutAgent(ctx, record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	callable, err := store.ListCallable(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(callable) != 1 || callable[0].AgentID != "sales" {
		t.Errorf("expected only sales to be callable, got %+v", callable)
	}
}

func TestNewMemoryStoreFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")

	seed := `[
		{"agentId":"sales","publicKey":"pk_1","remoteAgentId":"ra_1","demoTranscript":"Hi, this is the sales desk.","demoDurationSeconds":12},
		{"agentId":"support","publicKey":"pk_2","remoteAgentId":"ra_2"}
	]`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	store, err := NewMemoryStoreFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err := store.GetAgent(context.Background(), "sales")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.DemoTranscript == "" || record.DemoDurationSeconds != 12 {
		t.Errorf("expected demo fields to load, got %+v", record)
	}
}

func TestNewMemoryStoreFromFileRejectsBadSeed(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing agent id", `[{"publicKey":"pk"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("failed to write seed file: %v", err)
			}
			if _, err := NewMemoryStoreFromFile(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
