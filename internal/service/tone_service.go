package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/repair"
)

// ToneService runs the multimodal tone and prosody analysis
type ToneService struct {
	audio   *AudioSource
	model   client.ToneModel
	engine  *repair.Engine
	callLog *CallLogger
}

func NewToneService(audio *AudioSource, toneModel client.ToneModel, engine *repair.Engine, callLog *CallLogger) *ToneService {
	if engine == nil {
		engine = repair.New()
	}
	return &ToneService{audio: audio, model: toneModel, engine: engine, callLog: callLog}
}

// Analyze re-downloads the audio and asks the tone model for a ToneReport.
// The returned report is never nil when err is nil. An
// *UnsupportedAudioError means the recording must be re-uploaded.
func (s *ToneService) Analyze(ctx context.Context, call *model.Call, transcript *string) (*model.ToneReport, error) {
	if s.model == nil || !s.model.IsConfigured() {
		return nil, ErrModelNotConfigured
	}

	s.callLog.Log(call.ID, "🎭 מתחיל ניתוח טונציה", map[string]interface{}{
		"model":          s.model.Name(),
		"has_transcript": transcript != nil && *transcript != "",
	})

	audio, err := s.audio.Load(ctx, call.AudioFilePath)
	if err != nil {
		return nil, err
	}

	supported := s.model.SupportedFormats()
	if !containsFormat(supported, audio.Format.Extension) {
		return nil, &UnsupportedAudioError{Format: audio.Format.Extension, Supported: supported}
	}

	raw, err := s.model.AnalyzeAudio(ctx, &client.ToneRequest{
		SystemPrompt: toneSystemPrompt,
		UserPrompt:   toneUserPrompt(call.CallType, transcript),
		Audio:        audio.Data,
		Format:       audio.Format,
	})
	if err != nil {
		if isFormatRejection(err) {
			return nil, &UnsupportedAudioError{Format: audio.Format.Extension, Supported: supported, Cause: err}
		}
		return nil, err
	}

	text := ""
	if transcript != nil {
		text = *transcript
	}
	res := s.engine.RepairTone(raw, text)
	report := model.ParseToneReport(res.Object())

	data := map[string]interface{}{
		"repair_method": string(res.Method),
		"tone_score":    report.Score,
		"red_flags":     report.RedFlags.Raised(),
	}
	if res.Err != nil {
		data["repair_error"] = res.Err.Error()
	}
	s.callLog.Log(call.ID, "✅ ניתוח טונציה הושלם", data)

	return report, nil
}

func containsFormat(formats []string, ext string) bool {
	for _, f := range formats {
		if strings.EqualFold(f, ext) {
			return true
		}
	}
	return false
}

// isFormatRejection recognizes a 400 whose body blames the audio container.
func isFormatRejection(err error) bool {
	apiErr, ok := client.AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "format") &&
		(strings.Contains(body, "audio") || strings.Contains(body, "unsupported") || strings.Contains(body, "invalid"))
}
