package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/store"
)

const (
	TaskTypeAnalyzeCall = "call:analyze"
	QueueAnalysis       = "analysis"

	defaultLogLimit = 200
)

// TaskEnqueuer is the part of *asynq.Client the service needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CallService registers calls and queues them for analysis
type CallService struct {
	store       store.Store
	asynqClient TaskEnqueuer
	taskTimeout time.Duration
	callLog     *CallLogger
}

func NewCallService(st store.Store, asynqClient TaskEnqueuer, taskTimeout time.Duration, callLog *CallLogger) *CallService {
	return &CallService{
		store:       st,
		asynqClient: asynqClient,
		taskTimeout: taskTimeout,
		callLog:     callLog,
	}
}

// CreateCall stores a new pending call and optionally queues it.
func (s *CallService) CreateCall(ctx context.Context, req *model.CreateCallRequest) (*model.Call, *model.EnqueueResponse, error) {
	call := &model.Call{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		CompanyID:        req.CompanyID,
		CallType:         req.CallType,
		AnalysisType:     req.AnalysisType.Normalize(),
		AudioFilePath:    req.AudioFilePath,
		CustomerName:     req.CustomerName,
		AgentNotes:       req.AgentNotes,
		AnalysisNotes:    req.AnalysisNotes,
		ProcessingStatus: model.CallStatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.store.CreateCall(ctx, call); err != nil {
		return nil, nil, fmt.Errorf("failed to save call: %w", err)
	}
	s.callLog.Log(call.ID, "📥 שיחה נרשמה", map[string]interface{}{
		"call_type":     call.CallType,
		"analysis_type": string(call.AnalysisType),
	})

	if !req.Process {
		return call, nil, nil
	}

	queued, err := s.enqueue(ctx, call.ID, "created")
	if err != nil {
		return call, nil, err
	}
	return call, queued, nil
}

// GetCall returns a call by ID.
func (s *CallService) GetCall(ctx context.Context, callID string) (*model.Call, error) {
	return s.store.GetCall(ctx, callID)
}

// EnqueueAnalysis queues a pipeline run for an existing call.
func (s *CallService) EnqueueAnalysis(ctx context.Context, callID, reason string) (*model.EnqueueResponse, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ProcessingStatus == model.CallStatusError {
		return nil, ErrCallInErrorState
	}
	return s.enqueue(ctx, call.ID, reason)
}

func (s *CallService) enqueue(ctx context.Context, callID, reason string) (*model.EnqueueResponse, error) {
	now := time.Now().UTC()
	task, err := NewAnalyzeTask(callID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueAnalysis),
		asynq.MaxRetry(3),
		asynq.Retention(24 * time.Hour),
		asynq.TaskID(fmt.Sprintf("%s:%d", callID, now.UnixNano())),
	}
	if s.taskTimeout > 0 {
		opts = append(opts, asynq.Timeout(s.taskTimeout))
	}

	info, err := s.asynqClient.EnqueueContext(ctx, task, opts...)
	if err != nil {
		s.callLog.Fail(callID, "❌ הכנסה לתור הניתוח נכשלה", err)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.callLog.Log(callID, "⏳ השיחה נכנסה לתור הניתוח", map[string]interface{}{
		"task_id": info.ID,
		"reason":  reason,
	})

	return &model.EnqueueResponse{
		CallID:   callID,
		TaskID:   info.ID,
		Status:   model.CallStatusPending,
		QueuedAt: now,
	}, nil
}

// ListLogs returns the recent progress events of a call.
func (s *CallService) ListLogs(ctx context.Context, callID string, limit int) ([]model.CallLog, error) {
	if _, err := s.store.GetCall(ctx, callID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultLogLimit {
		limit = defaultLogLimit
	}
	logs, err := s.store.ListLogs(ctx, callID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	if logs == nil {
		logs = []model.CallLog{}
	}
	return logs, nil
}

// UpsertPrompt stores the rubric prompt for a call category.
func (s *CallService) UpsertPrompt(ctx context.Context, req *model.UpsertPromptRequest) error {
	return s.store.UpsertPrompt(ctx, req.CallType, req.SystemPrompt)
}

// DeactivatePrompt removes a category prompt so the built-in rubric applies.
func (s *CallService) DeactivatePrompt(ctx context.Context, callType string) error {
	return s.store.DeactivatePrompt(ctx, callType)
}

// GetPrompt returns the active prompt of a category.
func (s *CallService) GetPrompt(ctx context.Context, callType string) (string, error) {
	p, ok, err := s.store.GetPromptForCategory(ctx, callType)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", store.ErrPromptNotFound
	}
	return p, nil
}

// NewAnalyzeTask builds the asynq task for one pipeline run.
func NewAnalyzeTask(callID, reason string, at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(model.AnalysisTaskPayload{
		CallID:     callID,
		EnqueuedAt: at,
		Reason:     reason,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAnalyzeCall, data), nil
}
