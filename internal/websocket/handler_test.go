package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/call"
	"github.com/stagecall/voicedemo/internal/config"
	"github.com/stagecall/voicedemo/internal/mic"
	"github.com/stagecall/voicedemo/internal/types"
	"github.com/stagecall/voicedemo/internal/voice"
)

func newTestServer(t *testing.T, origins []string) (*httptest.Server, *Hub) {
	t.Helper()
	logger := zerolog.New(&bytes.Buffer{})

	cfg := &config.Config{
		AllowedOrigins: origins,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 1024,
	}

	gate := mic.NewProbeGate(mic.GrantAll(), logger)
	coord := call.New(gate, stubCreds{}, &stubDialer{conn: &stubConn{events: make(chan voice.Event, 4)}}, logger)

	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	handler := NewHandler(hub, cfg, coord, agentdir.NewMemoryStore(), logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandlerDeliversStatusOnConnect(t *testing.T) {
	srv, hub := newTestServer(t, []string{"http://site.test"})

	// A transition happened before this client connected
	status := types.StatusMessage{Type: types.MsgTypeStatus, Call: types.CallSnapshot{Status: types.CallStatusIdle}}
	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("failed to marshal status: %v", err)
	}
	hub.Broadcast(data)
	time.Sleep(10 * time.Millisecond)

	header := http.Header{"Origin": []string{"http://site.test"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		t.Fatalf("expected upgrade to succeed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an initial status message: %v", err)
	}

	var msg types.StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("failed to parse status message: %v", err)
	}
	if msg.Type != types.MsgTypeStatus || msg.Call.Status != types.CallStatusIdle {
		t.Errorf("unexpected initial status: %+v", msg)
	}
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	srv, _ := newTestServer(t, []string{"http://site.test"})

	header := http.Header{"Origin": []string{"http://evil.test"}}
	if _, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header); err == nil {
		t.Error("expected upgrade to be rejected for an unknown origin")
	}
}

func TestHandlerAllowsNonBrowserClients(t *testing.T) {
	srv, _ := newTestServer(t, []string{"http://site.test"})

	// No Origin header means a non-browser client
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("expected upgrade without Origin to succeed: %v", err)
	}
	conn.Close()
}
