package call

import (
	"time"

	"github.com/stagecall/voicedemo/internal/types"
	"github.com/stagecall/voicedemo/internal/voice"
)

// session is the single mutable session slot. It is owned exclusively by the
// Coordinator and only ever touched under the coordinator's lock; UI triggers
// see it through immutable snapshots.
type session struct {
	agentID   string
	attemptID string // identity tag of the connect attempt the slot belongs to
	status    types.CallStatus
	conn      voice.Conn
	startedAt time.Time
	lastErr   string
}

// snapshot builds the read-only view handed to subscribers
func (s *session) snapshot() types.CallSnapshot {
	snap := types.CallSnapshot{
		AgentID: s.agentID,
		Status:  s.status,
		Error:   s.lastErr,
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		snap.StartedAt = &startedAt
	}
	return snap
}

// closeConn releases the vendor connection, if any. The slot never exposes a
// half-connected state: the handle is discarded atomically with the status
// transition its caller performs.
func (s *session) closeConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// supersede invalidates the current attempt so late events for it are discarded
func (s *session) supersede() {
	s.attemptID = ""
}

// owns reports whether the given attempt still owns the slot
func (s *session) owns(attemptID string) bool {
	return s.attemptID != "" && s.attemptID == attemptID
}
