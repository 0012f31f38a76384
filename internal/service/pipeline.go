package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coachcall/api/internal/logger"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/store"
)

// Stage contracts consumed by the pipeline
type (
	CallTranscriber interface {
		Transcribe(ctx context.Context, call *model.Call) (*model.Transcript, error)
	}
	ToneAnalyzer interface {
		Analyze(ctx context.Context, call *model.Call, transcript *string) (*model.ToneReport, error)
	}
	ContentAnalyzer interface {
		Analyze(ctx context.Context, in *ContentInput) (*model.ContentReport, error)
	}
)

// ProgressNotifier pushes call progress to live subscribers
type ProgressNotifier interface {
	NotifyProgress(callID string, status model.CallStatus, message string)
	NotifyComplete(callID string, result model.ProcessResult)
	NotifyError(callID, code, message string)
}

// WebSocket error codes
const (
	ErrCodeUnsupportedAudio = "UNSUPPORTED_AUDIO"
	ErrCodeAnalysisFailed   = "ANALYSIS_FAILED"
	ErrCodePersistence      = "PERSISTENCE_ERROR"
	ErrCodeInvalidCall      = "INVALID_CALL"
)

var errInvalidTransition = errors.New("invalid status transition")

// Pipeline sequences transcription, tone and content analysis for one call
type Pipeline struct {
	calls         store.CallStore
	transcription CallTranscriber
	tone          ToneAnalyzer
	content       ContentAnalyzer
	notifier      ProgressNotifier
	callLog       *CallLogger
	log           *logger.Logger
	timeout       time.Duration
	now           func() time.Time
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

func WithNotifier(n ProgressNotifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(calls store.CallStore, transcription CallTranscriber, tone ToneAnalyzer, content ContentAnalyzer, callLog *CallLogger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		calls:         calls,
		transcription: transcription,
		tone:          tone,
		content:       content,
		callLog:       callLog,
		log:           logger.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessCall runs the pipeline for one call and reports the outcome. Calls
// left in an in-flight status resume from it; completed calls are analyzed
// again from scratch.
func (p *Pipeline) ProcessCall(ctx context.Context, callID string) model.ProcessResult {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	call, err := p.calls.GetCall(ctx, callID)
	if errors.Is(err, store.ErrCallNotFound) {
		return model.ProcessResult{Success: false, CallID: callID, Message: model.MsgCallNotFound}
	}
	if err != nil {
		p.log.WithCall(callID).WithError(err).Error("failed to load call")
		return model.ProcessResult{Success: false, CallID: callID, Message: fmt.Sprintf(model.MsgPersistenceFailed, err)}
	}

	if call.ProcessingStatus == model.CallStatusError {
		return model.ProcessResult{Success: false, CallID: callID, Message: model.MsgCallInErrorState, Status: model.CallStatusError}
	}

	r := &run{
		p:      p,
		call:   call,
		mode:   call.Mode(),
		status: call.ProcessingStatus,
		log:    p.log.WithCall(callID),
	}

	if strings.TrimSpace(call.AudioFilePath) == "" {
		return r.fail(ctx, ErrCodeInvalidCall, model.MsgMissingAudio)
	}

	r.log.WithField("status", call.ProcessingStatus).WithField("mode", r.mode).Info("processing call")
	p.callLog.Log(callID, "🚀 התחלת עיבוד שיחה", map[string]interface{}{
		"status":        string(call.ProcessingStatus),
		"analysis_type": string(r.mode),
	})

	return r.execute(ctx)
}

// run is the mutable state of one ProcessCall invocation
type run struct {
	p        *Pipeline
	call     *model.Call
	mode     model.AnalysisType
	status   model.CallStatus
	log      *logger.Logger
	warnings []string

	transcript *string
	segments   []model.TranscriptSegment
	tone       *model.ToneReport
}

func (r *run) execute(ctx context.Context) model.ProcessResult {
	resuming := r.status.IsInFlight()
	if resuming {
		r.transcript = r.call.Transcript
		r.segments = r.call.TranscriptSegments
		r.tone = r.call.ToneReport
		if r.call.ErrorMessage != nil {
			r.warnings = append(r.warnings, *r.call.ErrorMessage)
		}
	}

	// a fresh or repeated run starts without the outputs of an earlier one
	start := clearError()
	start.ResetResults = !resuming

	// stage 1: transcription
	transcribed := resuming && (r.status == model.CallStatusAnalyzingTone || r.status == model.CallStatusAnalyzingContent)
	switch {
	case r.mode == model.AnalysisTypeToneOnly:
		if r.status != model.CallStatusAnalyzingTone {
			r.p.callLog.Log(r.call.ID, "⏩ דילוג על שלב התמלול (ניתוח טונציה בלבד)", nil)
			if res, ok := r.transition(ctx, model.CallStatusAnalyzingTone, start); !ok {
				return res
			}
		}
	case !transcribed:
		if res, ok := r.transition(ctx, model.CallStatusTranscribing, start); !ok {
			return res
		}
		r.warnings = nil

		t, err := r.p.transcription.Transcribe(ctx, r.call)
		if res, ok := r.checkContext(ctx); !ok {
			return res
		}

		u := model.CallUpdate{}
		switch {
		case errors.Is(err, ErrStorageUnavailable):
			return r.fail(ctx, ErrCodeAnalysisFailed, fmt.Sprintf(model.MsgAnalysisFailed, err))
		case err != nil:
			r.log.WithError(err).Warn("transcription failed, continuing with tone analysis only")
			warning := fmt.Sprintf(model.MsgTranscriptionFailed, err)
			r.warnings = append(r.warnings, warning)
			r.p.callLog.Log(r.call.ID, "❌ שגיאה בתמלול", map[string]interface{}{"error": err.Error()})
			u.ErrorMessage = &warning
		default:
			r.transcript = &t.Text
			r.segments = t.Segments
			u.Transcript = &t.Text
			u.TranscriptSegments = &t.Segments
			u.TranscriptWords = &t.Words
		}

		if res, ok := r.transition(ctx, model.CallStatusAnalyzingTone, u); !ok {
			return res
		}
	}

	// stage 2: tone
	reuseTone := r.status == model.CallStatusAnalyzingContent && r.tone != nil
	if !reuseTone {
		tone, err := r.p.tone.Analyze(ctx, r.call, r.transcript)
		if res, ok := r.checkContext(ctx); !ok {
			return res
		}

		var unsupported *UnsupportedAudioError
		switch {
		case errors.As(err, &unsupported):
			msg := fmt.Sprintf(model.MsgUnsupportedAudio, strings.Join(unsupported.Supported, ", "))
			return r.fail(ctx, ErrCodeUnsupportedAudio, msg)
		case errors.Is(err, ErrStorageUnavailable):
			return r.fail(ctx, ErrCodeAnalysisFailed, fmt.Sprintf(model.MsgAnalysisFailed, err))
		case err != nil:
			r.log.WithError(err).Warn("tone analysis failed")
			r.p.callLog.Log(r.call.ID, "❌ ניתוח טונציה נכשל", map[string]interface{}{"error": err.Error()})
			r.warnings = append(r.warnings, fmt.Sprintf(model.MsgToneFailed, err))
			r.tone = nil
		default:
			r.tone = tone
		}
	}

	if r.mode == model.AnalysisTypeToneOnly {
		if r.tone == nil {
			return r.fail(ctx, ErrCodeAnalysisFailed, strings.Join(r.warnings, " | "))
		}
		score := r.tone.Score
		flag := r.tone.RedFlags.Critical()
		return r.complete(ctx, model.CallUpdate{
			ToneReport:   r.tone,
			OverallScore: &score,
			RedFlag:      &flag,
		}, model.MsgToneOnlyCompleted)
	}

	if r.status != model.CallStatusAnalyzingContent || !reuseTone {
		u := model.CallUpdate{ToneReport: r.tone}
		if res, ok := r.transition(ctx, model.CallStatusAnalyzingContent, u); !ok {
			return res
		}
	}

	// stage 3: content
	report, err := r.p.content.Analyze(ctx, &ContentInput{
		Call:       r.call,
		Transcript: r.transcript,
		Segments:   r.segments,
		Tone:       r.tone,
	})
	if res, ok := r.checkContext(ctx); !ok {
		return res
	}

	if err != nil {
		r.log.WithError(err).Warn("content analysis failed")
		r.p.callLog.Log(r.call.ID, "❌ ניתוח תוכן נכשל", map[string]interface{}{"error": err.Error()})
		msg := fmt.Sprintf(model.MsgAnalysisFailed, err)
		if r.tone == nil {
			r.warnings = append(r.warnings, msg)
			return r.fail(ctx, ErrCodeAnalysisFailed, strings.Join(r.warnings, " | "))
		}
		r.warnings = append(r.warnings, msg)
		score := r.tone.Score
		flag := r.tone.RedFlags.Critical()
		return r.complete(ctx, model.CallUpdate{
			ToneReport:   r.tone,
			OverallScore: &score,
			RedFlag:      &flag,
		}, model.MsgCompleted)
	}

	score := 0.0
	switch {
	case report.OverallScore != nil:
		score = *report.OverallScore
	case r.tone != nil:
		score = r.tone.Score
	}
	flag := report.RedFlag
	return r.complete(ctx, model.CallUpdate{
		ToneReport:    r.tone,
		ContentReport: report,
		OverallScore:  &score,
		RedFlag:       &flag,
	}, model.MsgCompleted)
}

// transition persists next together with u before anything else happens.
func (r *run) transition(ctx context.Context, next model.CallStatus, u model.CallUpdate) (model.ProcessResult, bool) {
	if !r.status.CanTransition(next, r.mode) {
		err := fmt.Errorf("%w: %s -> %s", errInvalidTransition, r.status, next)
		return r.fail(ctx, ErrCodeInvalidCall, fmt.Sprintf(model.MsgAnalysisFailed, err)), false
	}

	u.ProcessingStatus = &next
	if err := r.p.calls.UpdateCall(ctx, r.call.ID, u); err != nil {
		if res, ok := r.checkContext(ctx); !ok {
			return res, false
		}
		r.log.WithError(err).WithField("status", next).Error("failed to persist status")
		return r.fail(ctx, ErrCodePersistence, fmt.Sprintf(model.MsgPersistenceFailed, err)), false
	}

	u.Apply(r.call)
	r.status = next
	r.p.callLog.Log(r.call.ID, "🔄 עדכון סטטוס", map[string]interface{}{"new_status": string(next)})
	if r.p.notifier != nil {
		r.p.notifier.NotifyProgress(r.call.ID, next, "")
	}
	return model.ProcessResult{}, true
}

func (r *run) complete(ctx context.Context, u model.CallUpdate, message string) model.ProcessResult {
	now := r.p.now().UTC()
	u.AnalyzedAt = &now
	if len(r.warnings) > 0 {
		w := strings.Join(r.warnings, " | ")
		u.ErrorMessage = &w
	}

	if res, ok := r.transition(ctx, model.CallStatusCompleted, u); !ok {
		return res
	}

	data := map[string]interface{}{"red_flag": *u.RedFlag}
	if u.OverallScore != nil {
		data["overall_score"] = *u.OverallScore
	}
	r.p.callLog.Log(r.call.ID, "🏁 ניתוח שיחה הושלם", data)
	r.log.WithField("overall_score", *u.OverallScore).Info("call analysis completed")

	res := model.ProcessResult{Success: true, CallID: r.call.ID, Message: message, Status: model.CallStatusCompleted}
	if r.p.notifier != nil {
		r.p.notifier.NotifyComplete(r.call.ID, res)
	}
	return res
}

// fail moves the call to the absorbing error status with a user-facing message.
func (r *run) fail(ctx context.Context, code, message string) model.ProcessResult {
	status := model.CallStatusError
	u := model.CallUpdate{ProcessingStatus: &status, ErrorMessage: &message}
	if err := r.p.calls.UpdateCall(ctx, r.call.ID, u); err != nil {
		r.log.WithError(err).Error("failed to persist error status")
	} else {
		r.status = status
	}

	r.log.WithField("code", code).Warn(message)
	r.p.callLog.Log(r.call.ID, "❌ עיבוד השיחה נכשל", map[string]interface{}{"code": code, "error": message})
	if r.p.notifier != nil {
		r.p.notifier.NotifyError(r.call.ID, code, message)
	}
	return model.ProcessResult{Success: false, CallID: r.call.ID, Message: message, Status: model.CallStatusError}
}

// checkContext stops the run without writing when the invocation deadline
// passed; the call keeps its last persisted status for a later resume.
func (r *run) checkContext(ctx context.Context) (model.ProcessResult, bool) {
	if err := ctx.Err(); err != nil {
		r.log.WithError(err).Warn("pipeline interrupted")
		return model.ProcessResult{
			Success: false,
			CallID:  r.call.ID,
			Message: fmt.Sprintf(model.MsgAnalysisFailed, err),
			Status:  r.status,
		}, false
	}
	return model.ProcessResult{}, true
}

func clearError() model.CallUpdate {
	empty := ""
	return model.CallUpdate{ErrorMessage: &empty}
}
