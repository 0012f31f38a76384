package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/coachcall/api/internal/model"
)

// Call identity columns; the mutable ones live in model.Col*.
const (
	colID            = "id"
	colUserID        = "user_id"
	colCompanyID     = "company_id"
	colCallType      = "call_type"
	colAnalysisType  = "analysis_type"
	colAudioFilePath = "audio_file_path"
	colCustomerName  = "customer_name"
	colAgentNotes    = "agent_notes"
	colAnalysisNotes = "analysis_notes"
	colCreatedAt     = "created_at"
)

// callColumns flattens a new call into column/value pairs, leaving unset
// optional fields out.
func callColumns(c *model.Call) (map[string]interface{}, error) {
	u := model.CallUpdate{
		ProcessingStatus: &c.ProcessingStatus,
		ErrorMessage:     c.ErrorMessage,
		Transcript:       c.Transcript,
		ToneReport:       c.ToneReport,
		ContentReport:    c.ContentReport,
		OverallScore:     c.OverallScore,
		RedFlag:          c.RedFlag,
		AnalyzedAt:       c.AnalyzedAt,
	}
	if c.TranscriptSegments != nil {
		u.TranscriptSegments = &c.TranscriptSegments
	}
	if c.TranscriptWords != nil {
		u.TranscriptWords = &c.TranscriptWords
	}

	cols, err := u.Columns()
	if err != nil {
		return nil, err
	}

	cols[colID] = c.ID
	cols[colUserID] = c.UserID
	cols[colCompanyID] = c.CompanyID
	cols[colCallType] = c.CallType
	cols[colAnalysisType] = string(c.AnalysisType.Normalize())
	cols[colAudioFilePath] = c.AudioFilePath
	cols[colCustomerName] = c.CustomerName
	cols[colAgentNotes] = c.AgentNotes
	cols[colAnalysisNotes] = c.AnalysisNotes
	cols[colCreatedAt] = c.CreatedAt.UTC()
	if c.UpdatedAt != nil {
		cols[model.ColUpdatedAt] = c.UpdatedAt.UTC()
	}
	return cols, nil
}

// callFromHash rebuilds a call from its string-encoded fields.
func callFromHash(h map[string]string) (*model.Call, error) {
	c := &model.Call{
		ID:               h[colID],
		UserID:           h[colUserID],
		CompanyID:        h[colCompanyID],
		CallType:         h[colCallType],
		AnalysisType:     model.AnalysisType(h[colAnalysisType]).Normalize(),
		AudioFilePath:    h[colAudioFilePath],
		CustomerName:     h[colCustomerName],
		AgentNotes:       h[colAgentNotes],
		AnalysisNotes:    h[colAnalysisNotes],
		ProcessingStatus: model.CallStatus(h[model.ColProcessingStatus]),
	}
	if c.ProcessingStatus == "" {
		c.ProcessingStatus = model.CallStatusPending
	}

	if v := h[model.ColErrorMessage]; v != "" {
		c.ErrorMessage = &v
	}
	if v, ok := h[model.ColTranscript]; ok {
		c.Transcript = &v
	}

	if err := decodeJSON(h, model.ColTranscriptSegments, &c.TranscriptSegments); err != nil {
		return nil, err
	}
	if err := decodeJSON(h, model.ColTranscriptWords, &c.TranscriptWords); err != nil {
		return nil, err
	}
	if v := h[model.ColToneReport]; v != "" {
		var r model.ToneReport
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", model.ColToneReport, err)
		}
		c.ToneReport = &r
	}
	if v := h[model.ColContentReport]; v != "" {
		var r model.ContentReport
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", model.ColContentReport, err)
		}
		c.ContentReport = &r
	}

	if v := h[model.ColOverallScore]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", model.ColOverallScore, err)
		}
		c.OverallScore = &f
	}
	if v := h[model.ColRedFlag]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", model.ColRedFlag, err)
		}
		c.RedFlag = &b
	}

	var err error
	if c.AnalyzedAt, err = decodeTime(h, model.ColAnalyzedAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = decodeTime(h, model.ColUpdatedAt); err != nil {
		return nil, err
	}
	created, err := decodeTime(h, colCreatedAt)
	if err != nil {
		return nil, err
	}
	if created != nil {
		c.CreatedAt = *created
	}

	return c, nil
}

func decodeJSON(h map[string]string, col string, dst interface{}) error {
	v := h[col]
	if v == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return fmt.Errorf("decode %s: %w", col, err)
	}
	return nil
}

func decodeTime(h map[string]string, col string) (*time.Time, error) {
	v := h[col]
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", col, err)
	}
	return &t, nil
}

// hashFields renders column values as strings for a Redis hash.
func hashFields(cols map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(cols))
	for k, v := range cols {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339Nano)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
