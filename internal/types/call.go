package types

import "time"

// CallStatus represents the lifecycle state of the single demo-call session
type CallStatus string

const (
	CallStatusIdle                 CallStatus = "idle"                  // No session, ready for a request
	CallStatusRequestingPermission CallStatus = "requesting_permission" // Awaiting microphone permission
	CallStatusConnecting           CallStatus = "connecting"            // Resolving credentials / dialing the vendor
	CallStatusActive               CallStatus = "active"                // Vendor confirmed the call is live
	CallStatusEnding               CallStatus = "ending"                // Teardown in progress
	CallStatusError                CallStatus = "error"                 // Last attempt failed, cleared by the next request
)

// CallSnapshot is the read-only view of the session slot handed to subscribers.
// UI triggers render from this and never mutate session state directly.
type CallSnapshot struct {
	AgentID   string     `json:"agentId,omitempty"`
	Status    CallStatus `json:"status"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Live reports whether the snapshot describes a session that holds (or is
// acquiring) a vendor connection.
func (s CallSnapshot) Live() bool {
	switch s.Status {
	case CallStatusRequestingPermission, CallStatusConnecting, CallStatusActive, CallStatusEnding:
		return true
	}
	return false
}

// AgentCredentials are the vendor credentials resolved for one agent
type AgentCredentials struct {
	PublicKey     string `json:"publicKey"`
	RemoteAgentID string `json:"remoteAgentId"`
}

// Valid reports whether both credential fields are present. An empty field
// means the agent is unresolvable, never a usable partial config.
func (c AgentCredentials) Valid() bool {
	return c.PublicKey != "" && c.RemoteAgentID != ""
}

// AgentRecord is one entry in the agent directory
type AgentRecord struct {
	AgentID             string  `json:"agentId" dynamodbav:"AgentID"`
	PublicKey           string  `json:"publicKey" dynamodbav:"PublicKey"`
	RemoteAgentID       string  `json:"remoteAgentId" dynamodbav:"RemoteAgentID"`
	DemoTranscript      string  `json:"demoTranscript,omitempty" dynamodbav:"DemoTranscript"`
	DemoDurationSeconds float64 `json:"demoDurationSeconds,omitempty" dynamodbav:"DemoDurationSeconds"`
}

// Credentials extracts the vendor credentials from a directory record
func (r AgentRecord) Credentials() AgentCredentials {
	return AgentCredentials{PublicKey: r.PublicKey, RemoteAgentID: r.RemoteAgentID}
}
