package store

import (
	"context"
	"errors"
	"time"

	"github.com/coachcall/api/internal/model"
)

var (
	ErrCallNotFound   = errors.New("call not found")
	ErrPromptNotFound = errors.New("prompt not found")
)

// CallStore persists calls. UpdateCall must only touch the columns set on
// the update so concurrent writers do not clobber each other.
type CallStore interface {
	CreateCall(ctx context.Context, call *model.Call) error
	GetCall(ctx context.Context, id string) (*model.Call, error)
	UpdateCall(ctx context.Context, id string, u model.CallUpdate) error
	// ListStalled returns in-flight calls whose last update is older than before.
	ListStalled(ctx context.Context, before time.Time, limit int) ([]*model.Call, error)
}

// LogSink receives best-effort progress events for a call.
type LogSink interface {
	AppendLog(ctx context.Context, entry *model.CallLog) error
}

// LogReader lists the progress events of a call, oldest first.
type LogReader interface {
	ListLogs(ctx context.Context, callID string, limit int) ([]model.CallLog, error)
}

// PromptRegistry resolves a category-specific system prompt. ok is false
// when no active prompt exists for the category.
type PromptRegistry interface {
	GetPromptForCategory(ctx context.Context, callType string) (prompt string, ok bool, err error)
}

// PromptWriter stores category-specific system prompts.
type PromptWriter interface {
	UpsertPrompt(ctx context.Context, callType, prompt string) error
	DeactivatePrompt(ctx context.Context, callType string) error
}

// ContextProvider looks up the business context used by content analysis.
type ContextProvider interface {
	GetBusinessContext(ctx context.Context, call *model.Call) (*model.BusinessContext, error)
}

// Store is everything the pipeline and the API need from persistence.
type Store interface {
	CallStore
	LogSink
	LogReader
	PromptRegistry
	PromptWriter
	ContextProvider
	Ping(ctx context.Context) error
}
