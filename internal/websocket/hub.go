package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/metrics"
)

// Hub fans coordinator updates out to every connected UI trigger. All triggers
// render from the same shared status, so the hub keeps the most recent
// broadcast and replays it to clients that connect between transitions.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	// Last status payload broadcast, delivered to newly registered clients
	last []byte

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run drives registration and fan-out until ctx is cancelled, then closes
// every client so their write pumps exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info().Msg("status hub stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// Broadcast queues a message for every connected client
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.last != nil {
		// A trigger mounting mid-session must render the current status
		// without waiting for the next transition
		select {
		case client.send <- h.last:
		default:
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.Get().RecordWSConnection()
	h.logger.Info().
		Str("client_id", client.id).
		Int("total_clients", total).
		Msg("ui trigger connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.Get().RecordWSDisconnection()
		h.logger.Info().
			Str("client_id", client.id).
			Int("total_clients", total).
			Msg("ui trigger disconnected")
	}
}

func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = message
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// A client that cannot keep up with status updates is dropped
			// rather than allowed to stall the fan-out
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
