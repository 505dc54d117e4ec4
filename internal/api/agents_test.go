package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/types"
)

func newTestRouter(t *testing.T, records ...types.AgentRecord) *chi.Mux {
	t.Helper()

	store := agentdir.NewMemoryStore()
	for _, record := range records {
		if err := store.PutAgent(context.Background(), record); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}

	handler := NewAgentsHandler(store, zerolog.New(&bytes.Buffer{}))
	r := chi.NewRouter()
	r.Get("/api/agents", handler.List)
	r.Get("/api/agents/{agentId}/config", handler.GetConfig)
	r.Get("/api/agents/{agentId}/demo", handler.GetDemo)
	return r
}

func TestListOnlyIncludesCallableAgents(t *testing.T) {
	router := newTestRouter(t,
		types.AgentRecord{AgentID: "sales", PublicKey: "pk", RemoteAgentID: "ra", DemoTranscript: "Hello."},
		types.AgentRecord{AgentID: "draft", PublicKey: "pk_only"},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var summaries []agentSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(summaries))
	}
	if summaries[0].AgentID != "sales" || !summaries[0].HasDemo {
		t.Errorf("unexpected summary: %+v", summaries[0])
	}
}

func TestGetConfig(t *testing.T) {
	router := newTestRouter(t, types.AgentRecord{
		AgentID:       "sales",
		PublicKey:     "pk_123",
		RemoteAgentID: "agent_abc",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/sales/config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var creds types.AgentCredentials
	if err := json.Unmarshal(rec.Body.Bytes(), &creds); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if creds.PublicKey != "pk_123" || creds.RemoteAgentID != "agent_abc" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestGetConfigUnknownAgent(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/agents/ghost/config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestGetConfigIncompleteCredentialsIsNotFound(t *testing.T) {
	router := newTestRouter(t, types.AgentRecord{
		AgentID:   "broken",
		PublicKey: "pk_only",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/broken/config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Missing credentials must never surface as a malformed-but-usable config
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestGetDemo(t *testing.T) {
	router := newTestRouter(t, types.AgentRecord{
		AgentID:             "sales",
		PublicKey:           "pk",
		RemoteAgentID:       "ra",
		DemoTranscript:      "Hi, thanks for calling.",
		DemoDurationSeconds: 9.5,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/sales/demo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var demo demoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &demo); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if demo.Transcript != "Hi, thanks for calling." || demo.DurationSeconds != 9.5 {
		t.Errorf("unexpected demo payload: %+v", demo)
	}
}

func TestGetDemoWithoutTranscript(t *testing.T) {
	router := newTestRouter(t, types.AgentRecord{
		AgentID:       "sales",
		PublicKey:     "pk",
		RemoteAgentID: "ra",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/sales/demo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}
