package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// WSDialer dials the vendor's realtime WebSocket endpoint
type WSDialer struct {
	baseURL string
	logger  zerolog.Logger
}

// NewWSDialer creates a dialer for the given vendor base URL
func NewWSDialer(baseURL string, logger zerolog.Logger) *WSDialer {
	return &WSDialer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.With().Str("component", "vendor_dialer").Logger(),
	}
}

// Dial opens a connection for one call. The returned Conn emits EventStarted
// once the vendor confirms the call is live.
func (d *WSDialer) Dial(ctx context.Context, publicKey, remoteAgentID string) (Conn, error) {
	wsURL := d.baseURL + "/call"
	// Convert http:// to ws:// or https:// to wss://
	if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:]
	}
	wsURL += "?" + url.Values{
		"publicKey": {publicKey},
		"agentId":   {remoteAgentID},
	}.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vendor dial failed: %w", err)
	}

	c := &wsConn{
		conn:   conn,
		events: make(chan Event, 8),
		logger: d.logger.With().Str("remote_agent_id", remoteAgentID).Logger(),
	}
	go c.readLoop()

	c.logger.Debug().Msg("vendor websocket connected")
	return c, nil
}

// vendorEvent is the vendor's wire format for call notifications
type vendorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type wsConn struct {
	conn      *websocket.Conn
	events    chan Event
	logger    zerolog.Logger
	closeOnce sync.Once
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

// Close tears the connection down. The read loop exits on the closed socket
// and closes the event channel.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeTimeout)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
		c.logger.Debug().Msg("vendor websocket closed")
	})
	return err
}

// readLoop decodes vendor events until the connection drops. A decode panic
// must not take the process down; it surfaces as an error event instead.
func (c *wsConn) readLoop() {
	defer close(c.events)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("vendor event handler panicked")
			c.emit(Event{Type: EventError, Message: fmt.Sprintf("vendor connection failure: %v", r)})
		}
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(Event{Type: EventEnded})
			} else {
				c.emit(Event{Type: EventError, Message: "vendor connection lost"})
			}
			return
		}

		var ev vendorEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("unparseable vendor event, skipping")
			continue
		}

		switch ev.Type {
		case "started":
			c.emit(Event{Type: EventStarted})
		case "ended":
			c.emit(Event{Type: EventEnded})
			return
		case "error":
			c.emit(Event{Type: EventError, Message: ev.Message})
			return
		default:
			// Transcript fragments, audio markers and other vendor chatter
			// are not part of the lifecycle contract
			c.logger.Debug().Str("type", ev.Type).Msg("ignoring vendor event")
		}
	}
}

// emit delivers an event without blocking a wedged consumer forever
func (c *wsConn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("type", string(ev.Type)).Msg("event buffer full, dropping vendor event")
	}
}
