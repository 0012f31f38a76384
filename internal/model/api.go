package model

import "time"

// CreateCallRequest registers an already uploaded recording
type CreateCallRequest struct {
	UserID        string       `json:"user_id" validate:"omitempty,max=64"`
	CompanyID     string       `json:"company_id" validate:"omitempty,max=64"`
	CallType      string       `json:"call_type" validate:"required,max=200"`
	AnalysisType  AnalysisType `json:"analysis_type" validate:"omitempty,oneof=full tone_only"`
	AudioFilePath string       `json:"audio_file_path" validate:"required,max=1024"`
	CustomerName  string       `json:"customer_name" validate:"omitempty,max=200"`
	AgentNotes    string       `json:"agent_notes" validate:"omitempty,max=4000"`
	AnalysisNotes string       `json:"analysis_notes" validate:"omitempty,max=4000"`
	Process       bool         `json:"process"`
}

// ProcessCallRequest triggers analysis of a call
type ProcessCallRequest struct {
	CallID string `json:"call_id" validate:"required,max=64"`
}

// ProcessResult is the outcome of one pipeline invocation
type ProcessResult struct {
	Success bool       `json:"success"`
	CallID  string     `json:"call_id"`
	Message string     `json:"message"`
	Status  CallStatus `json:"status,omitempty"`
}

// EnqueueResponse is returned when analysis is queued
type EnqueueResponse struct {
	CallID   string     `json:"call_id"`
	TaskID   string     `json:"task_id"`
	Status   CallStatus `json:"status"`
	QueuedAt time.Time  `json:"queued_at"`
}

// UpsertPromptRequest stores a category-specific rubric prompt
type UpsertPromptRequest struct {
	CallType     string `json:"call_type" validate:"required,max=200"`
	SystemPrompt string `json:"system_prompt" validate:"required,min=20"`
}

// ReportExportResponse points at an exported report
type ReportExportResponse struct {
	CallID    string    `json:"call_id"`
	FileURL   string    `json:"file_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateCallResponse is returned when a call is registered
type CreateCallResponse struct {
	Call       *Call            `json:"call"`
	Queued     *EnqueueResponse `json:"queued,omitempty"`
	// QueueError is set when the call was saved but could not be queued;
	// POST /api/process-call retries it.
	QueueError string           `json:"queue_error,omitempty"`
}
