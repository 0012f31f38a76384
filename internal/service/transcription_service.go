package service

import (
	"context"
	"errors"
	"time"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/retry"
)

// TranscriptionService turns a stored recording into text
type TranscriptionService struct {
	audio   *AudioSource
	stt     client.Transcriber
	policy  retry.Policy
	model   string
	lang    string
	callLog *CallLogger
}

func NewTranscriptionService(audio *AudioSource, stt client.Transcriber, cfg *config.Config, callLog *CallLogger) *TranscriptionService {
	return &TranscriptionService{
		audio:   audio,
		stt:     stt,
		policy:  retry.Exponential(cfg.Pipeline.TranscribeAttempts, cfg.Pipeline.BackoffBase),
		model:   cfg.OpenAI.TranscriptionModel,
		lang:    cfg.OpenAI.Language,
		callLog: callLog,
	}
}

// Transcribe downloads the call audio and runs speech-to-text. Download and
// STT failures are retried per the policy; client errors other than
// timeouts and rate limits are not. Errors wrapping ErrStorageUnavailable
// mean no download URL could be issued.
func (s *TranscriptionService) Transcribe(ctx context.Context, call *model.Call) (*model.Transcript, error) {
	if s.stt == nil || !s.stt.IsConfigured() {
		return nil, ErrModelNotConfigured
	}

	url, err := s.audio.SignedURL(ctx, call.AudioFilePath)
	if err != nil {
		return nil, err
	}

	var transcript *model.Transcript
	err = retry.Do(ctx, s.policy, func(attempt int) error {
		s.callLog.Log(call.ID, "🎙️ שולח בקשת תמלול", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": s.policy.Attempts,
			"model":        s.model,
		})

		audio, err := s.audio.Fetch(ctx, url, call.AudioFilePath)
		if err != nil {
			return classify(err)
		}

		resp, err := s.stt.Transcribe(ctx, &client.TranscriptionRequest{
			Audio:                  audio.Data,
			Format:                 audio.Format,
			Model:                  s.model,
			Language:               s.lang,
			ResponseFormat:         "verbose_json",
			TimestampGranularities: []string{"word", "segment"},
		})
		if err != nil {
			return classify(err)
		}

		transcript = resp.Transcript()
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		s.callLog.Log(call.ID, "⚠️ ניסיון תמלול נכשל", map[string]interface{}{
			"attempt":       attempt,
			"error":         err.Error(),
			"retry_in_secs": wait.Seconds(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.callLog.Log(call.ID, "✅ תמלול הושלם", map[string]interface{}{
		"transcript_length": len([]rune(transcript.Text)),
		"segments_count":    len(transcript.Segments),
		"words_count":       len(transcript.Words),
		"language":          transcript.Language,
	})
	return transcript, nil
}

// classify marks errors that another attempt cannot fix.
func classify(err error) error {
	if errors.Is(err, client.ErrNotConfigured) {
		return retry.Permanent(err)
	}
	if apiErr, ok := client.AsAPIError(err); ok && !apiErr.Retryable() {
		return retry.Permanent(err)
	}
	return err
}
