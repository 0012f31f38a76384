package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Call is a recorded call and its analysis lifecycle (the unit of work)
type Call struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id,omitempty"`
	CompanyID          string              `json:"company_id,omitempty"`
	CallType           string              `json:"call_type"`
	AnalysisType       AnalysisType        `json:"analysis_type"`
	AudioFilePath      string              `json:"audio_file_path"`
	CustomerName       string              `json:"customer_name,omitempty"`
	AgentNotes         string              `json:"agent_notes,omitempty"`
	AnalysisNotes      string              `json:"analysis_notes,omitempty"`
	ProcessingStatus   CallStatus          `json:"processing_status"`
	ErrorMessage       *string             `json:"error_message,omitempty"`
	Transcript         *string             `json:"transcript,omitempty"`
	TranscriptSegments []TranscriptSegment `json:"transcript_segments,omitempty"`
	TranscriptWords    []TranscriptWord    `json:"transcript_words,omitempty"`
	ToneReport         *ToneReport         `json:"tone_analysis_report,omitempty"`
	ContentReport      *ContentReport      `json:"analysis_report,omitempty"`
	OverallScore       *float64            `json:"overall_score,omitempty"`
	RedFlag            *bool               `json:"red_flag,omitempty"`
	AnalyzedAt         *time.Time          `json:"analyzed_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          *time.Time          `json:"updated_at,omitempty"`
}

// Mode returns the effective analysis mode.
func (c *Call) Mode() AnalysisType {
	return c.AnalysisType.Normalize()
}

// Validate checks the completed-call invariant.
func (c *Call) Validate() error {
	if c.ProcessingStatus != CallStatusCompleted {
		return nil
	}
	if c.OverallScore == nil {
		return fmt.Errorf("completed call %s has no overall score", c.ID)
	}
	if c.ToneReport == nil && c.ContentReport == nil {
		return fmt.Errorf("completed call %s has no report", c.ID)
	}
	return nil
}

// Column names shared by the call stores
const (
	ColProcessingStatus   = "processing_status"
	ColErrorMessage       = "error_message"
	ColTranscript         = "transcript"
	ColTranscriptSegments = "transcript_segments"
	ColTranscriptWords    = "transcript_words"
	ColToneReport         = "tone_analysis_report"
	ColContentReport      = "analysis_report"
	ColOverallScore       = "overall_score"
	ColRedFlag            = "red_flag"
	ColAnalyzedAt         = "analyzed_at"
	ColUpdatedAt          = "updated_at"
)

// CallUpdate is a partial update; nil fields are left untouched.
// An empty ErrorMessage clears the stored message.
type CallUpdate struct {
	ProcessingStatus   *CallStatus
	ErrorMessage       *string
	Transcript         *string
	TranscriptSegments *[]TranscriptSegment
	TranscriptWords    *[]TranscriptWord
	ToneReport         *ToneReport
	ContentReport      *ContentReport
	OverallScore       *float64
	RedFlag            *bool
	AnalyzedAt         *time.Time

	// ResetResults nulls every analysis output not set on this update,
	// so a reprocessed call cannot complete with the previous run's data.
	ResetResults bool
}

// resultColumns are the outputs of one pipeline run.
var resultColumns = []string{
	ColTranscript, ColTranscriptSegments, ColTranscriptWords, ColToneReport,
	ColContentReport, ColOverallScore, ColRedFlag, ColAnalyzedAt,
}

// ClearedColumns lists the columns a store must null for this update.
func (u CallUpdate) ClearedColumns() []string {
	if !u.ResetResults {
		return nil
	}
	set := map[string]bool{
		ColTranscript:         u.Transcript != nil,
		ColTranscriptSegments: u.TranscriptSegments != nil,
		ColTranscriptWords:    u.TranscriptWords != nil,
		ColToneReport:         u.ToneReport != nil,
		ColContentReport:      u.ContentReport != nil,
		ColOverallScore:       u.OverallScore != nil,
		ColRedFlag:            u.RedFlag != nil,
		ColAnalyzedAt:         u.AnalyzedAt != nil,
	}
	var cols []string
	for _, col := range resultColumns {
		if !set[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// IsEmpty reports whether the update touches no field.
func (u CallUpdate) IsEmpty() bool {
	return !u.ResetResults && u.ProcessingStatus == nil && u.ErrorMessage == nil && u.Transcript == nil &&
		u.TranscriptSegments == nil && u.TranscriptWords == nil && u.ToneReport == nil &&
		u.ContentReport == nil && u.OverallScore == nil && u.RedFlag == nil && u.AnalyzedAt == nil
}

// Columns flattens the update into column/value pairs. Structured fields are
// JSON-encoded; values are plain Go types so any store driver accepts them.
func (u CallUpdate) Columns() (map[string]interface{}, error) {
	cols := make(map[string]interface{})

	if u.ProcessingStatus != nil {
		cols[ColProcessingStatus] = string(*u.ProcessingStatus)
	}
	if u.ErrorMessage != nil {
		cols[ColErrorMessage] = *u.ErrorMessage
	}
	if u.Transcript != nil {
		cols[ColTranscript] = *u.Transcript
	}

	jsonFields := []struct {
		col   string
		set   bool
		value interface{}
	}{
		{ColTranscriptSegments, u.TranscriptSegments != nil, u.TranscriptSegments},
		{ColTranscriptWords, u.TranscriptWords != nil, u.TranscriptWords},
		{ColToneReport, u.ToneReport != nil, u.ToneReport},
		{ColContentReport, u.ContentReport != nil, u.ContentReport},
	}
	for _, f := range jsonFields {
		if !f.set {
			continue
		}
		data, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", f.col, err)
		}
		cols[f.col] = string(data)
	}

	if u.OverallScore != nil {
		cols[ColOverallScore] = *u.OverallScore
	}
	if u.RedFlag != nil {
		cols[ColRedFlag] = *u.RedFlag
	}
	if u.AnalyzedAt != nil {
		cols[ColAnalyzedAt] = u.AnalyzedAt.UTC()
	}

	return cols, nil
}

// Apply copies the set fields of the update onto the call.
func (u CallUpdate) Apply(c *Call) {
	if u.ResetResults {
		c.Transcript = nil
		c.TranscriptSegments = nil
		c.TranscriptWords = nil
		c.ToneReport = nil
		c.ContentReport = nil
		c.OverallScore = nil
		c.RedFlag = nil
		c.AnalyzedAt = nil
	}
	if u.ProcessingStatus != nil {
		c.ProcessingStatus = *u.ProcessingStatus
	}
	if u.ErrorMessage != nil {
		if *u.ErrorMessage == "" {
			c.ErrorMessage = nil
		} else {
			msg := *u.ErrorMessage
			c.ErrorMessage = &msg
		}
	}
	if u.Transcript != nil {
		t := *u.Transcript
		c.Transcript = &t
	}
	if u.TranscriptSegments != nil {
		c.TranscriptSegments = *u.TranscriptSegments
	}
	if u.TranscriptWords != nil {
		c.TranscriptWords = *u.TranscriptWords
	}
	if u.ToneReport != nil {
		c.ToneReport = u.ToneReport
	}
	if u.ContentReport != nil {
		c.ContentReport = u.ContentReport
	}
	if u.OverallScore != nil {
		s := *u.OverallScore
		c.OverallScore = &s
	}
	if u.RedFlag != nil {
		f := *u.RedFlag
		c.RedFlag = &f
	}
	if u.AnalyzedAt != nil {
		t := *u.AnalyzedAt
		c.AnalyzedAt = &t
	}
}

// StatusUpdate is a convenience for a status-only update.
func StatusUpdate(status CallStatus) CallUpdate {
	return CallUpdate{ProcessingStatus: &status}
}

// Analysis task payload
type AnalysisTaskPayload struct {
	CallID     string    `json:"callId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Reason     string    `json:"reason,omitempty"`
}
