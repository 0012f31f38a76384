package model

// Call processing status
type CallStatus string

const (
	CallStatusPending          CallStatus = "pending"
	CallStatusTranscribing     CallStatus = "transcribing"
	CallStatusAnalyzingTone    CallStatus = "analyzing_tone"
	CallStatusAnalyzingContent CallStatus = "analyzing_content"
	CallStatusCompleted        CallStatus = "completed"
	CallStatusError            CallStatus = "error"
)

var ValidCallStatuses = []CallStatus{
	CallStatusPending, CallStatusTranscribing, CallStatusAnalyzingTone,
	CallStatusAnalyzingContent, CallStatusCompleted, CallStatusError,
}

// InFlightStatuses are the statuses a pipeline invocation can be interrupted in.
var InFlightStatuses = []CallStatus{
	CallStatusTranscribing, CallStatusAnalyzingTone, CallStatusAnalyzingContent,
}

// IsTerminal reports whether no further pipeline work is expected for the status.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusError
}

// IsInFlight reports whether a pipeline stage was running when the status was persisted.
func (s CallStatus) IsInFlight() bool {
	for _, st := range InFlightStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Progress is a coarse percentage used for progress events.
func (s CallStatus) Progress() int {
	switch s {
	case CallStatusTranscribing:
		return 10
	case CallStatusAnalyzingTone:
		return 40
	case CallStatusAnalyzingContent:
		return 70
	case CallStatusCompleted:
		return 100
	default:
		return 0
	}
}

var callTransitions = map[CallStatus][]CallStatus{
	CallStatusPending:          {CallStatusPending, CallStatusTranscribing, CallStatusAnalyzingTone, CallStatusError},
	CallStatusTranscribing:     {CallStatusTranscribing, CallStatusAnalyzingTone, CallStatusError},
	CallStatusAnalyzingTone:    {CallStatusAnalyzingTone, CallStatusAnalyzingContent, CallStatusCompleted, CallStatusError},
	CallStatusAnalyzingContent: {CallStatusAnalyzingContent, CallStatusCompleted, CallStatusError},
	// reprocessing a completed call starts over
	CallStatusCompleted: {CallStatusTranscribing, CallStatusAnalyzingTone, CallStatusError},
	CallStatusError:     {},
}

// CanTransition reports whether the state machine allows moving from s to next
// for a call analyzed in the given mode.
func (s CallStatus) CanTransition(next CallStatus, mode AnalysisType) bool {
	if mode == AnalysisTypeToneOnly && (next == CallStatusTranscribing || next == CallStatusAnalyzingContent) {
		return false
	}
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Analysis types
type AnalysisType string

const (
	AnalysisTypeFull     AnalysisType = "full"
	AnalysisTypeToneOnly AnalysisType = "tone_only"
)

var ValidAnalysisTypes = []AnalysisType{AnalysisTypeFull, AnalysisTypeToneOnly}

// Normalize maps unknown or empty values to full analysis.
func (a AnalysisType) Normalize() AnalysisType {
	if a == AnalysisTypeToneOnly {
		return a
	}
	return AnalysisTypeFull
}

// Tone backends
type ToneProvider string

const (
	ToneProviderOpenAI ToneProvider = "openai"
	ToneProviderGemini ToneProvider = "gemini"
)
