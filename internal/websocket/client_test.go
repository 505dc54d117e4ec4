package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/call"
	"github.com/stagecall/voicedemo/internal/config"
	"github.com/stagecall/voicedemo/internal/mic"
	"github.com/stagecall/voicedemo/internal/types"
	"github.com/stagecall/voicedemo/internal/voice"
)

type stubCreds struct{}

func (stubCreds) Resolve(_ context.Context, agentID string) (types.AgentCredentials, error) {
	return types.AgentCredentials{PublicKey: "pk", RemoteAgentID: agentID}, nil
}

type stubConn struct {
	events chan voice.Event
}

func (c *stubConn) Events() <-chan voice.Event { return c.events }
func (c *stubConn) Close() error               { return nil }

type stubDialer struct {
	conn *stubConn
}

func (d *stubDialer) Dial(context.Context, string, string) (voice.Conn, error) {
	return d.conn, nil
}

func newPlaybackClient(t *testing.T, records ...types.AgentRecord) (*Client, *stubConn) {
	t.Helper()
	logger := zerolog.New(&bytes.Buffer{})

	store := agentdir.NewMemoryStore()
	for _, record := range records {
		if err := store.PutAgent(context.Background(), record); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}

	conn := &stubConn{events: make(chan voice.Event, 4)}
	gate := mic.NewProbeGate(mic.GrantAll(), logger)
	coord := call.New(gate, stubCreds{}, &stubDialer{conn: conn}, logger)

	cfg := &config.Config{MaxMessageSize: 1024}
	return NewClient(NewHub(logger), nil, cfg, coord, store, logger), conn
}

// nextTranscript decodes the next queued transcript message for the client
func nextTranscript(t *testing.T, c *Client) types.TranscriptMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg types.TranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to parse transcript message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no transcript message queued")
	}
	return types.TranscriptMessage{}
}

func waitActive(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.coord.Status().Status != types.CallStatusActive {
		if time.Now().After(deadline) {
			t.Fatal("coordinator never became active")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPlaybackRevealsTranscriptWithPosition(t *testing.T) {
	client, _ := newPlaybackClient(t, types.AgentRecord{
		AgentID:             "sales",
		PublicKey:           "pk",
		RemoteAgentID:       "ra",
		DemoTranscript:      "0123456789",
		DemoDurationSeconds: 10,
	})

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackLoad, AgentID: "sales"})
	if msg := nextTranscript(t, client); msg.VisibleText != "" {
		t.Errorf("expected nothing revealed at load, got %q", msg.VisibleText)
	}

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackPosition, Seconds: 5})
	if msg := nextTranscript(t, client); msg.VisibleText != "01234" {
		t.Errorf("expected half the transcript at the midpoint, got %q", msg.VisibleText)
	}

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackSeek, Seconds: 0})
	if msg := nextTranscript(t, client); msg.VisibleText != "" {
		t.Errorf("expected seek to start to hide the transcript, got %q", msg.VisibleText)
	}

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackEnded})
	if msg := nextTranscript(t, client); msg.VisibleText != "0123456789" {
		t.Errorf("expected the full transcript after playback ends, got %q", msg.VisibleText)
	}
}

func TestPlaybackLoadUnknownAgentIsIgnored(t *testing.T) {
	client, _ := newPlaybackClient(t)

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackLoad, AgentID: "ghost"})

	select {
	case data := <-client.send:
		t.Errorf("expected no message for an unknown agent, got %s", data)
	default:
	}
}

func TestPlaybackSwitchingAgentsResetsProgress(t *testing.T) {
	client, _ := newPlaybackClient(t,
		types.AgentRecord{AgentID: "sales", PublicKey: "pk", RemoteAgentID: "ra",
			DemoTranscript: "0123456789", DemoDurationSeconds: 10},
		types.AgentRecord{AgentID: "support", PublicKey: "pk", RemoteAgentID: "ra",
			DemoTranscript: "abcdefghij", DemoDurationSeconds: 10},
	)

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackLoad, AgentID: "sales"})
	nextTranscript(t, client)
	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackPosition, Seconds: 8})
	nextTranscript(t, client)

	// Loading a different demo starts over from the beginning
	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackLoad, AgentID: "support"})
	msg := nextTranscript(t, client)
	if msg.AgentID != "support" || msg.VisibleText != "" {
		t.Errorf("expected a fresh cursor for support, got %+v", msg)
	}
}

func TestPositionBeforeLoadIsIgnored(t *testing.T) {
	client, _ := newPlaybackClient(t)

	client.handleMessage(types.ClientMessage{Type: types.MsgTypePlaybackPosition, Seconds: 5})

	select {
	case data := <-client.send:
		t.Errorf("expected no message before a playback load, got %s", data)
	default:
	}
}

func TestRequestIntentStartsCall(t *testing.T) {
	client, conn := newPlaybackClient(t, types.AgentRecord{
		AgentID: "sales", PublicKey: "pk", RemoteAgentID: "ra",
	})

	client.handleMessage(types.ClientMessage{Type: types.MsgTypeRequest, AgentID: "sales"})
	conn.events <- voice.Event{Type: voice.EventStarted}
	waitActive(t, client)

	if client.lastRequested != "sales" {
		t.Errorf("expected lastRequested sales, got %q", client.lastRequested)
	}
}

func TestReleaseCallStopsOwnSession(t *testing.T) {
	client, conn := newPlaybackClient(t)

	client.handleMessage(types.ClientMessage{Type: types.MsgTypeRequest, AgentID: "sales"})
	conn.events <- voice.Event{Type: voice.EventStarted}
	waitActive(t, client)

	client.releaseCall()

	if got := client.coord.Status().Status; got != types.CallStatusIdle {
		t.Errorf("expected the session released on disconnect, got %q", got)
	}
}

func TestReleaseCallLeavesOtherSessionsAlone(t *testing.T) {
	client, conn := newPlaybackClient(t)

	// Another trigger owns the active call
	client.coord.Request("support")
	conn.events <- voice.Event{Type: voice.EventStarted}
	waitActive(t, client)

	client.lastRequested = "sales"
	client.releaseCall()

	snap := client.coord.Status()
	if snap.Status != types.CallStatusActive || snap.AgentID != "support" {
		t.Errorf("expected the support call to survive, got %+v", snap)
	}
}
