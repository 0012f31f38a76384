package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/coachcall/api/internal/model"
)

// Transcriber is a speech-to-text backend
type Transcriber interface {
	Transcribe(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResponse, error)
	IsConfigured() bool
}

// TranscriptionRequest is one audio file to transcribe
type TranscriptionRequest struct {
	Audio                  []byte
	Format                 model.AudioFormat
	Model                  string
	Language               string
	ResponseFormat         string
	TimestampGranularities []string
}

// TranscriptionResponse is the verbose_json transcription payload.
// Segments and words are only present when the backend supplies them.
type TranscriptionResponse struct {
	Text     string                    `json:"text"`
	Language string                    `json:"language"`
	Duration float64                   `json:"duration"`
	Segments []model.TranscriptSegment `json:"segments"`
	Words    []model.TranscriptWord    `json:"words"`
}

// Transcript converts the response to the pipeline's transcript type.
func (r *TranscriptionResponse) Transcript() *model.Transcript {
	t := &model.Transcript{
		Text:     r.Text,
		Language: r.Language,
		Duration: r.Duration,
		Segments: r.Segments,
		Words:    r.Words,
	}
	if t.Segments == nil {
		t.Segments = []model.TranscriptSegment{}
	}
	if t.Words == nil {
		t.Words = []model.TranscriptWord{}
	}
	return t
}

// Transcribe posts the audio as multipart/form-data to /audio/transcriptions
func (c *OpenAIClient) Transcribe(ctx context.Context, tr *TranscriptionRequest) (*TranscriptionResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, tr.Format.FileName()))
	header.Set("Content-Type", tr.Format.MIMEType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(tr.Audio); err != nil {
		return nil, fmt.Errorf("failed to write audio: %w", err)
	}

	fields := [][2]string{
		{"model", tr.Model},
		{"language", tr.Language},
		{"response_format", tr.ResponseFormat},
	}
	for _, g := range tr.TimestampGranularities {
		fields = append(fields, [2]string{"timestamp_granularities[]", g})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result TranscriptionResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
