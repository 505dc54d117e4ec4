package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/call"
	"github.com/stagecall/voicedemo/internal/config"
	"github.com/stagecall/voicedemo/internal/transcript"
	"github.com/stagecall/voicedemo/internal/types"
)

// Client is a middleman between one UI trigger connection and the shared call
// coordinator. Clients only read derived status and issue request/stop
// intents; they never own session state.
type Client struct {
	// Unique client ID
	id string

	// The hub this client belongs to
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Configuration
	config *config.Config

	// Logger
	logger zerolog.Logger

	// The shared call coordinator all triggers act against
	coord *call.Coordinator

	// Agent directory for demo playback lookups
	agents agentdir.Store

	// Playback state for this client's open demo widget, if any.
	// Touched only from the read pump goroutine.
	cursor      *transcript.Cursor
	demoAgentID string

	// Last agent this client requested a call for, used to release the
	// session when the client goes away mid-call
	lastRequested string
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.Config, coord *call.Coordinator, agents agentdir.Store, logger zerolog.Logger) *Client {
	clientID := uuid.New().String()
	return &Client{
		id:     clientID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		config: cfg,
		logger: logger.With().Str("client_id", clientID).Logger(),
		coord:  coord,
		agents: agents,
	}
}

// readPump pumps intents from the websocket connection to the coordinator
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.releaseCall()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("unparseable client message, ignoring")
			continue
		}
		c.handleMessage(msg)
	}
}

// handleMessage dispatches one client intent
func (c *Client) handleMessage(msg types.ClientMessage) {
	switch msg.Type {
	case types.MsgTypeRequest:
		if msg.AgentID == "" {
			c.logger.Warn().Msg("call request without agentId, ignoring")
			return
		}
		c.lastRequested = msg.AgentID
		c.coord.Request(msg.AgentID)

	case types.MsgTypeStop:
		c.coord.Stop()

	case types.MsgTypePlaybackLoad:
		c.loadPlayback(msg.AgentID)

	case types.MsgTypePlaybackPosition:
		if c.cursor != nil {
			c.sendTranscript(c.cursor.OnTimeUpdate(msg.Seconds))
		}

	case types.MsgTypePlaybackSeek:
		if c.cursor != nil {
			c.sendTranscript(c.cursor.OnSeek(msg.Seconds))
		}

	case types.MsgTypePlaybackEnded:
		if c.cursor != nil {
			c.sendTranscript(c.cursor.OnEnded())
		}

	default:
		c.logger.Debug().Str("type", msg.Type).Msg("unknown client message type")
	}
}

// loadPlayback opens (or switches) this client's demo playback widget. A
// switch to a different agent's demo re-initializes the cursor even though the
// widget connection is reused.
func (c *Client) loadPlayback(agentID string) {
	if agentID == "" {
		c.logger.Warn().Msg("playback load without agentId, ignoring")
		return
	}

	record, err := c.agents.GetAgent(context.Background(), agentID)
	if err != nil || record.DemoTranscript == "" {
		c.logger.Warn().Err(err).Str("agent_id", agentID).Msg("no demo transcript for agent")
		return
	}

	if c.cursor == nil {
		c.cursor = transcript.NewCursor(record.DemoTranscript, record.DemoDurationSeconds)
	} else if c.demoAgentID != agentID {
		c.cursor.Reset(record.DemoTranscript, record.DemoDurationSeconds)
	}
	c.demoAgentID = agentID

	c.sendTranscript(c.cursor.VisibleText())
}

// sendTranscript pushes the revealed text to this client only
func (c *Client) sendTranscript(visible string) {
	data, err := json.Marshal(types.TranscriptMessage{
		Type:        types.MsgTypeTranscript,
		AgentID:     c.demoAgentID,
		VisibleText: visible,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal transcript message")
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn().Msg("send buffer full, dropping transcript update")
	}
}

// releaseCall stops a session this client initiated so no live vendor
// connection survives the UI that created it
func (c *Client) releaseCall() {
	if c.lastRequested == "" {
		return
	}
	snap := c.coord.Status()
	if snap.Live() && snap.AgentID == c.lastRequested {
		c.logger.Info().Str("agent_id", snap.AgentID).Msg("client left mid-call, stopping session")
		c.coord.Stop()
	}
}

// writePump pumps messages from the hub to the websocket connection
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
