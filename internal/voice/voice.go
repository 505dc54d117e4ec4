// Package voice isolates the realtime-voice vendor behind a narrow interface
// so the call coordinator never touches the vendor wire protocol directly.
package voice

import "context"

// EventType identifies a vendor event
type EventType string

const (
	EventStarted EventType = "started" // vendor confirmed the call is live
	EventEnded   EventType = "ended"   // vendor ended the call
	EventError   EventType = "error"   // vendor reported a failure
)

// Event is one notification from the vendor connection
type Event struct {
	Type    EventType
	Message string // human-readable detail for error events
}

// Conn is one live vendor connection. Events delivers vendor notifications in
// arrival order; the channel is closed when the connection is finished. Close
// is safe to call more than once and from any goroutine.
type Conn interface {
	Events() <-chan Event
	Close() error
}

// Dialer establishes vendor connections. The connect call returning does not
// mean the call is live; callers must wait for EventStarted.
type Dialer interface {
	Dial(ctx context.Context, publicKey, remoteAgentID string) (Conn, error)
}
