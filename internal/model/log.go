package model

import "time"

// CallLog is one progress event appended to the log sink
type CallLog struct {
	ID        string                 `json:"id"`
	CallID    string                 `json:"call_id"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
