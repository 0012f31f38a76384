package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/coachcall/api/internal/logger"
	"github.com/coachcall/api/internal/model"
)

// CallProcessor runs the analysis pipeline for one call
type CallProcessor interface {
	ProcessCall(ctx context.Context, callID string) model.ProcessResult
}

// AnalysisWorker processes call analysis tasks
type AnalysisWorker struct {
	pipeline CallProcessor
	log      *logger.Logger
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(pipeline CallProcessor, log *logger.Logger) *AnalysisWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &AnalysisWorker{pipeline: pipeline, log: log}
}

// ProcessTask handles call analysis tasks. Outcomes the pipeline already
// recorded on the call are not retried; an interrupted run is, and resumes
// from the last persisted status.
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.AnalysisTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.CallID == "" {
		return fmt.Errorf("task payload has no call id: %w", asynq.SkipRetry)
	}

	log := w.log.WithCall(payload.CallID)
	log.WithField("reason", payload.Reason).Info("starting call analysis")

	res := w.pipeline.ProcessCall(ctx, payload.CallID)

	switch {
	case res.Success:
		log.WithField("message", res.Message).Info("call analysis finished")
		return nil
	case res.Message == model.MsgCallNotFound:
		return fmt.Errorf("call %s not found: %w", payload.CallID, asynq.SkipRetry)
	case res.Status == model.CallStatusError:
		log.WithField("message", res.Message).Warn("call analysis failed")
		return fmt.Errorf("call analysis failed: %s: %w", res.Message, asynq.SkipRetry)
	case res.Status.IsInFlight():
		log.WithField("status", res.Status).Warn("call analysis interrupted")
		return fmt.Errorf("call analysis interrupted in %s: %s", res.Status, res.Message)
	default:
		return fmt.Errorf("call analysis failed: %s", res.Message)
	}
}
