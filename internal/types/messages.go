package types

// WebSocket message types exchanged with UI trigger clients
const (
	MsgTypeStatus     = "status"     // server -> client, coordinator snapshot
	MsgTypeDuration   = "duration"   // server -> client, elapsed seconds tick
	MsgTypeTranscript = "transcript" // server -> client, playback reveal

	MsgTypeRequest          = "request"           // client -> server, start/toggle a call
	MsgTypeStop             = "stop"              // client -> server, hang up
	MsgTypePlaybackLoad     = "playback_load"     // client -> server, open a demo playback widget
	MsgTypePlaybackPosition = "playback_position" // client -> server, audio timeupdate
	MsgTypePlaybackSeek     = "playback_seek"     // client -> server, user seeked
	MsgTypePlaybackEnded    = "playback_ended"    // client -> server, audio finished
)

// ClientMessage is the envelope for all intents sent by UI trigger clients
type ClientMessage struct {
	Type    string  `json:"type"`
	AgentID string  `json:"agentId,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}

// StatusMessage carries a coordinator snapshot to every connected client
type StatusMessage struct {
	Type string       `json:"type"` // "status"
	Call CallSnapshot `json:"call"`
}

// DurationMessage is the once-per-second elapsed tick for an active call
type DurationMessage struct {
	Type           string  `json:"type"` // "duration"
	AgentID        string  `json:"agentId"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// TranscriptMessage carries the currently revealed portion of a demo transcript
type TranscriptMessage struct {
	Type        string `json:"type"` // "transcript"
	AgentID     string `json:"agentId"`
	VisibleText string `json:"visibleText"`
}
