package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/call"
	"github.com/stagecall/voicedemo/internal/config"
)

// Handler handles WebSocket upgrade requests from UI trigger clients
type Handler struct {
	hub      *Hub
	config   *config.Config
	coord    *call.Coordinator
	agents   agentdir.Store
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, cfg *config.Config, coord *call.Coordinator, agents agentdir.Store, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &Handler{
		hub:    hub,
		config: cfg,
		coord:  coord,
		agents: agents,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients (no Origin header) are allowed
				return origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	// Create new client and hand it to the hub, which replays the current
	// status snapshot before any new broadcasts arrive
	client := NewClient(h.hub, conn, h.config, h.coord, h.agents, h.logger)
	h.hub.register <- client

	// Start client pumps
	client.Start()
}
