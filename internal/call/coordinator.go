package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/metrics"
	"github.com/stagecall/voicedemo/internal/mic"
	"github.com/stagecall/voicedemo/internal/types"
	"github.com/stagecall/voicedemo/internal/voice"
)

// User-facing failure messages surfaced in the error status
const (
	msgPermissionDenied = "Microphone access is required to start a call."
	msgConfigFailed     = "Could not load the agent configuration."
	msgVendorFailed     = "The voice service is unavailable right now."
	msgCallDropped      = "The call ended unexpectedly."
)

// CredentialSource resolves an agent name to vendor credentials
type CredentialSource interface {
	Resolve(ctx context.Context, agentID string) (types.AgentCredentials, error)
}

// Coordinator arbitrates call requests from any number of UI triggers against
// the single session slot. At most one vendor connection exists at a time;
// switching agents always tears the old connection down before dialing the new
// one, and a repeated request for the active agent hangs up instead of
// double-dialing.
type Coordinator struct {
	gate   mic.Gate
	creds  CredentialSource
	dialer voice.Dialer
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	sess session

	// State transitions are queued here in the order they are applied so
	// subscribers observe them in the same order
	notify chan types.CallSnapshot

	subMu   sync.Mutex
	subs    map[int]func(types.CallSnapshot)
	nextSub int
}

// New creates a Coordinator. Run must be started for subscribers to receive
// transition notifications.
func New(gate mic.Gate, creds CredentialSource, dialer voice.Dialer, logger zerolog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		gate:   gate,
		creds:  creds,
		dialer: dialer,
		logger: logger.With().Str("component", "call_coordinator").Logger(),
		ctx:    ctx,
		cancel: cancel,
		sess:   session{status: types.CallStatusIdle},
		notify: make(chan types.CallSnapshot, 64),
		subs:   make(map[int]func(types.CallSnapshot)),
	}
}

// Run dispatches transition notifications to subscribers until ctx is
// cancelled, then tears down any live session so no vendor connection
// outlives the coordinator.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			c.cancel()
			c.logger.Info().Msg("call coordinator stopped")
			return

		case snap := <-c.notify:
			c.subMu.Lock()
			listeners := make([]func(types.CallSnapshot), 0, len(c.subs))
			for _, fn := range c.subs {
				listeners = append(listeners, fn)
			}
			c.subMu.Unlock()

			for _, fn := range listeners {
				fn(snap)
			}
		}
	}
}

// Subscribe registers a listener for every state transition and immediately
// delivers the current snapshot so a freshly mounted trigger renders the
// shared status. The returned function unsubscribes.
func (c *Coordinator) Subscribe(fn func(types.CallSnapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	fn(c.Status())

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Status returns the current session snapshot
func (c *Coordinator) Status() types.CallSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot()
}

// Elapsed returns how long the current call has been active. Derived from the
// stored start time so every surface reports the same duration.
func (c *Coordinator) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.status != types.CallStatusActive {
		return 0
	}
	return time.Since(c.sess.startedAt)
}

// Request asks for a call to agentID. Semantics depend on the current state:
// from idle or error it starts a fresh attempt, while a permission/connect
// sequence is pending the same agent is a no-op, for the active agent it hangs
// up, and for a different agent it stops the current session first.
func (c *Coordinator) Request(agentID string) {
	if agentID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.sess.status {
	case types.CallStatusRequestingPermission, types.CallStatusConnecting:
		if c.sess.agentID == agentID {
			// Duplicate-request guard: rapid repeated taps must not double-dial
			c.logger.Debug().Str("agent_id", agentID).Msg("request ignored, attempt already pending")
			return
		}
		c.teardownLocked()
		c.beginLocked(agentID)

	case types.CallStatusActive:
		if c.sess.agentID == agentID {
			// Toggle: tapping the active agent again hangs up
			c.teardownLocked()
			return
		}
		c.teardownLocked()
		c.beginLocked(agentID)

	default: // Idle, Ending, Error
		c.beginLocked(agentID)
	}
}

// Stop hangs up the current session, cancels a pending attempt, or clears an
// error state. Idle is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.sess.status {
	case types.CallStatusIdle, types.CallStatusEnding:
		return
	case types.CallStatusError:
		c.sess.lastErr = ""
		c.sess.agentID = ""
		c.setStatusLocked(types.CallStatusIdle)
	default:
		c.teardownLocked()
	}
}

// beginLocked starts a new connect attempt for agentID
func (c *Coordinator) beginLocked(agentID string) {
	attemptID := uuid.New().String()
	c.sess.agentID = agentID
	c.sess.attemptID = attemptID
	c.sess.lastErr = ""
	c.sess.startedAt = time.Time{}
	c.setStatusLocked(types.CallStatusRequestingPermission)
	metrics.Get().RecordCallRequested()

	c.logger.Info().Str("agent_id", agentID).Str("attempt_id", attemptID).Msg("call requested")
	go c.runAttempt(attemptID, agentID)
}

// teardownLocked stops the current session: the in-flight attempt (if any) is
// superseded so its late events are discarded, and the vendor connection is
// released before the slot returns to idle.
func (c *Coordinator) teardownLocked() {
	c.sess.supersede()
	c.setStatusLocked(types.CallStatusEnding)
	c.sess.closeConn()
	c.sess.agentID = ""
	c.sess.startedAt = time.Time{}
	c.sess.lastErr = ""
	c.setStatusLocked(types.CallStatusIdle)
	metrics.Get().RecordCallEnded()
}

// runAttempt drives one connect attempt: permission, config resolution, vendor
// dial, then the vendor event stream. Every step re-checks that the attempt
// still owns the slot before applying its result.
func (c *Coordinator) runAttempt(attemptID, agentID string) {
	if err := c.gate.RequestAccess(c.ctx); err != nil {
		c.failAttempt(attemptID, msgPermissionDenied, "permission", err)
		return
	}

	if !c.advance(attemptID, types.CallStatusConnecting) {
		return
	}

	creds, err := c.creds.Resolve(c.ctx, agentID)
	if err != nil {
		c.failAttempt(attemptID, msgConfigFailed, "config", err)
		return
	}

	conn, err := c.dialer.Dial(c.ctx, creds.PublicKey, creds.RemoteAgentID)
	if err != nil {
		c.failAttempt(attemptID, msgVendorFailed, "vendor", err)
		return
	}

	c.mu.Lock()
	if !c.sess.owns(attemptID) {
		c.mu.Unlock()
		// Superseded while dialing; release the vendor resources
		conn.Close()
		metrics.Get().RecordStaleEventDiscarded()
		c.logger.Debug().Str("attempt_id", attemptID).Msg("discarding connection of superseded attempt")
		return
	}
	c.sess.conn = conn
	c.mu.Unlock()

	c.watchEvents(attemptID, conn)
}

// watchEvents applies vendor notifications to the session for as long as the
// attempt owns the slot. Events tagged to a superseded attempt are discarded;
// a late success in particular is treated as connect-then-immediately-stop,
// never as silently becoming the active session.
func (c *Coordinator) watchEvents(attemptID string, conn voice.Conn) {
	for ev := range conn.Events() {
		switch ev.Type {
		case voice.EventStarted:
			c.mu.Lock()
			if !c.sess.owns(attemptID) {
				c.mu.Unlock()
				conn.Close()
				metrics.Get().RecordStaleEventDiscarded()
				c.logger.Debug().Str("attempt_id", attemptID).Msg("late vendor start for superseded attempt, closing")
				return
			}
			if c.sess.status == types.CallStatusConnecting {
				c.sess.startedAt = time.Now()
				c.setStatusLocked(types.CallStatusActive)
				metrics.Get().RecordCallStarted()
				c.logger.Info().Str("agent_id", c.sess.agentID).Msg("call active")
			}
			c.mu.Unlock()

		case voice.EventEnded:
			c.finishAttempt(attemptID)
			return

		case voice.EventError:
			c.failAttempt(attemptID, msgCallDropped, "vendor", errors.New(ev.Message))
			return
		}
	}

	// Event stream closed without a terminal event: treat as the call ending
	c.finishAttempt(attemptID)
}

// advance moves the owning attempt to the given status; a superseded attempt
// advances nothing
func (c *Coordinator) advance(attemptID string, status types.CallStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sess.owns(attemptID) {
		metrics.Get().RecordStaleEventDiscarded()
		return false
	}
	c.setStatusLocked(status)
	return true
}

// finishAttempt returns the slot to idle after a vendor-initiated end
func (c *Coordinator) finishAttempt(attemptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sess.owns(attemptID) {
		metrics.Get().RecordStaleEventDiscarded()
		return
	}
	agentID := c.sess.agentID
	c.teardownLocked()
	c.logger.Info().Str("agent_id", agentID).Msg("call ended by vendor")
}

// failAttempt surfaces a terminal error for the owning attempt. The error is
// not retried; the next explicit request clears it.
func (c *Coordinator) failAttempt(attemptID, message, reason string, err error) {
	c.mu.Lock()
	if !c.sess.owns(attemptID) {
		c.mu.Unlock()
		metrics.Get().RecordStaleEventDiscarded()
		return
	}
	agentID := c.sess.agentID
	c.sess.supersede()
	c.sess.closeConn()
	c.sess.lastErr = message
	c.sess.startedAt = time.Time{}
	c.setStatusLocked(types.CallStatusError)
	c.mu.Unlock()

	metrics.Get().RecordCallFailed(reason)
	c.logger.Warn().Err(err).Str("agent_id", agentID).Str("reason", reason).Msg("call attempt failed")
}

// setStatusLocked applies a transition and queues the notification. Callers
// hold c.mu, so queue order matches transition order.
func (c *Coordinator) setStatusLocked(status types.CallStatus) {
	c.sess.status = status
	snap := c.sess.snapshot()
	select {
	case c.notify <- snap:
	default:
		c.logger.Warn().Str("status", string(status)).Msg("notification buffer full, dropping snapshot")
	}
}
