package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coachcall/api/internal/logger"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/store"
)

const sweepBatch = 100

// Requeuer queues another pipeline run for a call
type Requeuer interface {
	EnqueueAnalysis(ctx context.Context, callID, reason string) (*model.EnqueueResponse, error)
}

// StallSweeper periodically re-queues calls stuck in an in-flight status,
// e.g. after a worker crash.
type StallSweeper struct {
	calls      store.CallStore
	queue      Requeuer
	stallAfter time.Duration
	log        *logger.Logger
	now        func() time.Time
	cron       *cron.Cron
}

func NewStallSweeper(calls store.CallStore, queue Requeuer, stallAfter time.Duration, log *logger.Logger) *StallSweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &StallSweeper{
		calls:      calls,
		queue:      queue,
		stallAfter: stallAfter,
		log:        log,
		now:        time.Now,
		// overlapping sweeps would enqueue the same calls twice
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start schedules Sweep with a six-field cron expression.
func (s *StallSweeper) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("stall sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.log.WithField("schedule", schedule).Info("stall sweeper started")
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *StallSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep re-queues stalled calls and returns how many were queued.
func (s *StallSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.stallAfter)
	stalled, err := s.calls.ListStalled(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled calls: %w", err)
	}

	queued := 0
	for _, call := range stalled {
		_, err := s.queue.EnqueueAnalysis(ctx, call.ID, "stalled")
		switch {
		case err == nil:
			queued++
		case errors.Is(err, store.ErrCallNotFound):
		default:
			s.log.WithCall(call.ID).WithError(err).Warn("failed to re-queue stalled call")
		}
	}

	if queued > 0 {
		s.log.WithField("count", queued).Info("re-queued stalled calls")
	}
	return queued, nil
}
