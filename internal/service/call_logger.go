package service

import (
	"context"
	"sync"
	"time"

	"github.com/coachcall/api/internal/logger"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/store"
)

const logSinkTimeout = 5 * time.Second

// CallLogger writes progress events to the log sink without blocking the
// pipeline. Sink failures are only reported to the process log.
type CallLogger struct {
	sink store.LogSink
	log  *logger.Logger
	wg   sync.WaitGroup
}

func NewCallLogger(sink store.LogSink, log *logger.Logger) *CallLogger {
	if log == nil {
		log = logger.Nop()
	}
	return &CallLogger{sink: sink, log: log}
}

// Log records an event for callID. data may be nil.
func (l *CallLogger) Log(callID, message string, data map[string]interface{}) {
	if l == nil {
		return
	}
	l.log.WithCall(callID).WithFields(data).Debug(message)
	l.append(callID, message, data)
}

// Fail records a failed step; it also reaches the process log at warn level.
func (l *CallLogger) Fail(callID, message string, err error) {
	if l == nil {
		return
	}
	l.log.WithCall(callID).WithError(err).Warn(message)
	l.append(callID, message, map[string]interface{}{"error": err.Error()})
}

func (l *CallLogger) append(callID, message string, data map[string]interface{}) {
	if l.sink == nil {
		return
	}

	entry := &model.CallLog{
		CallID:    callID,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), logSinkTimeout)
		defer cancel()
		if err := l.sink.AppendLog(ctx, entry); err != nil {
			l.log.WithCall(callID).WithError(err).Warn("failed to append call log")
		}
	}()
}

// Wait blocks until every pending sink write has finished.
func (l *CallLogger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}
