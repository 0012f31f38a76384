package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coachcall/api/internal/model"
)

// ErrStoreUnavailable is returned by MemoryStore once FailUpdatesAfter trips.
var ErrStoreUnavailable = errors.New("store unavailable")

// MemoryStore is a process-local Store used by tests and local runs
// without Redis. Calls are deep-copied on the way in and out.
type MemoryStore struct {
	mu        sync.Mutex
	calls     map[string]*model.Call
	logs      map[string][]model.CallLog
	prompts   map[string]string
	contexts  map[string]*model.BusinessContext
	updates   int
	failAfter int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:     make(map[string]*model.Call),
		logs:      make(map[string][]model.CallLog),
		prompts:   make(map[string]string),
		contexts:  make(map[string]*model.BusinessContext),
		failAfter: -1,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// FailUpdatesAfter makes every UpdateCall after the first n return an error.
func (s *MemoryStore) FailUpdatesAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

// Updates returns how many UpdateCall invocations were applied.
func (s *MemoryStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// SetBusinessContext registers a context for a company ID.
func (s *MemoryStore) SetBusinessContext(companyID string, bc *model.BusinessContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[companyID] = bc
}

func (s *MemoryStore) CreateCall(_ context.Context, call *model.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[call.ID]; ok {
		return ErrCallExists
	}
	s.calls[call.ID] = cloneCall(call)
	return nil
}

func (s *MemoryStore) GetCall(_ context.Context, id string) (*model.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return cloneCall(c), nil
}

func (s *MemoryStore) UpdateCall(_ context.Context, id string, u model.CallUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrCallNotFound
	}
	if s.failAfter >= 0 && s.updates >= s.failAfter {
		return ErrStoreUnavailable
	}
	if u.IsEmpty() {
		return nil
	}
	if _, err := u.Columns(); err != nil {
		return err
	}
	u.Apply(c)
	now := time.Now().UTC()
	c.UpdatedAt = &now
	s.updates++
	return nil
}

func (s *MemoryStore) ListStalled(_ context.Context, before time.Time, limit int) ([]*model.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Call
	for _, c := range s.calls {
		if !c.ProcessingStatus.IsInFlight() {
			continue
		}
		last := c.CreatedAt
		if c.UpdatedAt != nil {
			last = *c.UpdatedAt
		}
		if last.Before(before) {
			out = append(out, cloneCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, entry *model.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.logs[entry.CallID] = append(s.logs[entry.CallID], *entry)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, callID string, limit int) ([]model.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs[callID]
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return append([]model.CallLog(nil), logs...), nil
}

func (s *MemoryStore) GetPromptForCategory(_ context.Context, callType string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[promptField(callType)]
	return p, ok, nil
}

func (s *MemoryStore) UpsertPrompt(_ context.Context, callType, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[promptField(callType)] = prompt
	return nil
}

func (s *MemoryStore) DeactivatePrompt(_ context.Context, callType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := promptField(callType)
	if _, ok := s.prompts[key]; !ok {
		return ErrPromptNotFound
	}
	delete(s.prompts, key)
	return nil
}

func (s *MemoryStore) GetBusinessContext(_ context.Context, call *model.Call) (*model.BusinessContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bc, ok := s.contexts[call.CompanyID]
	if !ok {
		return nil, nil
	}
	out := *bc
	return &out, nil
}

// cloneCall deep-copies through JSON so callers never share report pointers.
func cloneCall(c *model.Call) *model.Call {
	data, err := json.Marshal(c)
	if err != nil {
		out := *c
		return &out
	}
	var out model.Call
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *c
		return &cp
	}
	return &out
}
