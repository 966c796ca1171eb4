package model

// WebSocket message types
const (
	WSMessageTypeJam   = "jam"
	WSMessageTypeError = "error"
	WSMessageTypePing  = "ping"
	WSMessageTypePong  = "pong"
)

// Jam events pushed to subscribers
const (
	JamEventJoined  = "joined"
	JamEventLeft    = "left"
	JamEventStarted = "started"
	JamEventEnded   = "ended"
	JamEventDeleted = "deleted"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJamMessage carries the jam state after a committed change
type WSJamMessage struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	JamID int64  `json:"jamId"`
	Jam   *Jam   `json:"jam,omitempty"`
}

// WSErrorInvalidMessage is sent back for frames the server does not understand
const WSErrorInvalidMessage = "INVALID_MESSAGE"

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JamID int64   `json:"jamId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
