package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a status transition of a call
type WSProgressMessage struct {
	Type     string     `json:"type"`
	CallID   string     `json:"callId"`
	Progress int        `json:"progress"`
	Status   CallStatus `json:"status"`
	Message  string     `json:"message,omitempty"`
}

// WSCompleteMessage represents analysis completion
type WSCompleteMessage struct {
	Type   string        `json:"type"`
	CallID string        `json:"callId"`
	Result ProcessResult `json:"result"`
}

// WSErrorMessage represents a terminal failure
type WSErrorMessage struct {
	Type   string  `json:"type"`
	CallID string  `json:"callId"`
	Error  WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
