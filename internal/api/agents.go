package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/metrics"
)

// AgentsHandler serves agent configuration to the config resolver and demo
// playback material to the audio widgets
type AgentsHandler struct {
	store  agentdir.Store
	logger zerolog.Logger
}

// NewAgentsHandler creates a new AgentsHandler
func NewAgentsHandler(store agentdir.Store, logger zerolog.Logger) *AgentsHandler {
	return &AgentsHandler{
		store:  store,
		logger: logger.With().Str("component", "agents_api").Logger(),
	}
}

// GetConfig handles GET /api/agents/{agentId}/config
//
// A record with an empty public key or remote agent id is a resolution
// failure, never a degraded success.
func (h *AgentsHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	record, err := h.store.GetAgent(r.Context(), agentID)
	if err != nil {
		metrics.Get().RecordConfigLookup(false)
		if errors.Is(err, agentdir.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "unknown agent")
			return
		}
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("agent lookup failed")
		writeError(w, http.StatusInternalServerError, "agent lookup failed")
		return
	}

	creds := record.Credentials()
	if !creds.Valid() {
		metrics.Get().RecordConfigLookup(false)
		h.logger.Warn().Str("agent_id", agentID).Msg("agent record has incomplete credentials")
		writeError(w, http.StatusNotFound, "agent has no usable configuration")
		return
	}

	metrics.Get().RecordConfigLookup(true)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(creds)
}

// agentSummary is one entry in the agent listing
type agentSummary struct {
	AgentID string `json:"agentId"`
	HasDemo bool   `json:"hasDemo"`
}

// List handles GET /api/agents. Only agents with a complete vendor
// configuration are listed; credentials themselves are not exposed here.
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListCallable(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("agent listing failed")
		writeError(w, http.StatusInternalServerError, "agent listing failed")
		return
	}

	summaries := make([]agentSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, agentSummary{
			AgentID: record.AgentID,
			HasDemo: record.DemoTranscript != "",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// demoResponse is the playback material for one agent's demo widget
type demoResponse struct {
	AgentID         string  `json:"agentId"`
	Transcript      string  `json:"transcript"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// GetDemo handles GET /api/agents/{agentId}/demo
func (h *AgentsHandler) GetDemo(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	record, err := h.store.GetAgent(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, agentdir.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "unknown agent")
			return
		}
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("agent lookup failed")
		writeError(w, http.StatusInternalServerError, "agent lookup failed")
		return
	}

	if record.DemoTranscript == "" {
		writeError(w, http.StatusNotFound, "agent has no demo recording")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(demoResponse{
		AgentID:         record.AgentID,
		Transcript:      record.DemoTranscript,
		DurationSeconds: record.DemoDurationSeconds,
	})
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
