package service

import (
	"context"
	"fmt"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/repair"
	"github.com/coachcall/api/internal/store"
)

// ContentInput is everything the content model sees for one call
type ContentInput struct {
	Call       *model.Call
	Transcript *string
	Segments   []model.TranscriptSegment
	Tone       *model.ToneReport
	Context    *model.BusinessContext
}

// ContentService scores a call against the sales rubric
type ContentService struct {
	chat        client.ChatModel
	prompts     store.PromptRegistry
	contexts    store.ContextProvider
	engine      *repair.Engine
	model       string
	temperature float64
	maxTokens   int
	callLog     *CallLogger
}

func NewContentService(chat client.ChatModel, prompts store.PromptRegistry, contexts store.ContextProvider, engine *repair.Engine, cfg *config.Config, callLog *CallLogger) *ContentService {
	if engine == nil {
		engine = repair.New()
	}
	return &ContentService{
		chat:        chat,
		prompts:     prompts,
		contexts:    contexts,
		engine:      engine,
		model:       cfg.OpenAI.ContentModel,
		temperature: cfg.Content.Temperature,
		maxTokens:   cfg.Content.MaxTokens,
		callLog:     callLog,
	}
}

// BusinessContext looks up the company context for a call. Lookup
// failures are logged and yield nil.
func (s *ContentService) BusinessContext(ctx context.Context, call *model.Call) *model.BusinessContext {
	if s.contexts == nil {
		return nil
	}
	bc, err := s.contexts.GetBusinessContext(ctx, call)
	if err != nil {
		s.callLog.Log(call.ID, "⚠️ טעינת מידע עסקי נכשלה", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return bc
}

// SystemPrompt returns the category prompt, or the built-in rubric when
// none is registered or the registry fails.
func (s *ContentService) SystemPrompt(ctx context.Context, call *model.Call) string {
	if s.prompts != nil {
		prompt, ok, err := s.prompts.GetPromptForCategory(ctx, call.CallType)
		switch {
		case err != nil:
			s.callLog.Log(call.ID, "⚠️ טעינת פרומפט נכשלה, משתמש בפרומפט ברירת מחדל", map[string]interface{}{
				"call_type": call.CallType,
				"error":     err.Error(),
			})
		case ok:
			s.callLog.Log(call.ID, "✅ פרומפט מותאם לסוג השיחה נטען", map[string]interface{}{
				"call_type":     call.CallType,
				"prompt_length": len([]rune(prompt)),
			})
			return withJSONReminder(prompt)
		default:
			s.callLog.Log(call.ID, "ℹ️ משתמש בפרומפט ברירת מחדל", map[string]interface{}{"call_type": call.CallType})
		}
	}
	return withJSONReminder(defaultContentPrompt())
}

// Analyze requests the content report. Partial model output yields a
// report with the unscored categories absent.
func (s *ContentService) Analyze(ctx context.Context, in *ContentInput) (*model.ContentReport, error) {
	if s.chat == nil || !s.chat.IsConfigured() {
		return nil, ErrModelNotConfigured
	}

	call := in.Call
	if in.Context == nil {
		in.Context = s.BusinessContext(ctx, call)
	}

	userPrompt := contentUserPrompt(in)
	s.callLog.Log(call.ID, "📊 שולח בקשה לניתוח תוכן", map[string]interface{}{
		"model":             s.model,
		"transcript_length": transcriptLen(in.Transcript),
		"prompt_length":     len([]rune(userPrompt)),
		"has_tone_report":   in.Tone != nil,
	})

	resp, err := s.chat.ChatCompletion(ctx, &client.ChatCompletionRequest{
		Model: s.model,
		Messages: []client.ChatMessage{
			{Role: "system", Content: s.SystemPrompt(ctx, call)},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    s.temperature,
		MaxTokens:      s.maxTokens,
		ResponseFormat: client.JSONObjectFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("content analysis request failed: %w", err)
	}

	raw, err := resp.Content()
	if err != nil {
		return nil, err
	}
	if resp.Truncated() {
		s.callLog.Log(call.ID, "⚠️ תשובת ניתוח התוכן נקטעה", map[string]interface{}{"max_tokens": s.maxTokens})
	}

	text := ""
	if in.Transcript != nil {
		text = *in.Transcript
	}
	res := s.engine.RepairContent(raw, text)
	report := model.ParseContentReport(res.Object())

	data := map[string]interface{}{
		"repair_method":     string(res.Method),
		"scored_categories": len(report.Categories),
		"red_flag":          report.RedFlag,
	}
	if report.OverallScore != nil {
		data["overall_score"] = *report.OverallScore
	}
	s.callLog.Log(call.ID, "✅ ניתוח תוכן הושלם", data)

	return report, nil
}

func transcriptLen(t *string) int {
	if t == nil {
		return 0
	}
	return len([]rune(*t))
}
