package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/coachcall/api/internal/model"
)

const (
	activeCallsKey = "calls:active"
	promptsKey     = "prompts:active"

	maxLogsPerCall = 500
	logRetention   = 30 * 24 * time.Hour
)

var ErrCallExists = errors.New("call already exists")

func callKey(id string) string { return fmt.Sprintf("call:%s", id) }
func callLogsKey(id string) string { return fmt.Sprintf("call:%s:logs", id) }
func companyKey(id string) string { return fmt.Sprintf("company:%s", id) }
func userKey(id string) string { return fmt.Sprintf("user:%s", id) }
func promptField(ct string) string { return strings.TrimSpace(ct) }

// RedisStore keeps each call in a hash so partial updates are single HSETs.
// In-flight calls are indexed in a sorted set scored by their last update.
type RedisStore struct {
	redis *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// CreateCall stores a new call.
func (s *RedisStore) CreateCall(ctx context.Context, call *model.Call) error {
	cols, err := callColumns(call)
	if err != nil {
		return err
	}

	key := callKey(call.ID)
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check call: %w", err)
	}
	if n > 0 {
		return ErrCallExists
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, hashFields(cols))
		if call.ProcessingStatus.IsInFlight() {
			pipe.ZAdd(ctx, activeCallsKey, redis.Z{Score: float64(call.CreatedAt.Unix()), Member: call.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

// GetCall loads a call by ID.
func (s *RedisStore) GetCall(ctx context.Context, id string) (*model.Call, error) {
	h, err := s.redis.HGetAll(ctx, callKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}
	if len(h) == 0 {
		return nil, ErrCallNotFound
	}
	return callFromHash(h)
}

// UpdateCall writes only the fields set on u and stamps updated_at.
func (s *RedisStore) UpdateCall(ctx context.Context, id string, u model.CallUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	cols, err := u.Columns()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	cols[model.ColUpdatedAt] = now

	key := callKey(id)
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check call: %w", err)
	}
	if n == 0 {
		return ErrCallNotFound
	}

	member := redis.Z{Score: float64(now.Unix()), Member: id}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if cleared := u.ClearedColumns(); len(cleared) > 0 {
			pipe.HDel(ctx, key, cleared...)
		}
		pipe.HSet(ctx, key, hashFields(cols))
		switch {
		case u.ProcessingStatus == nil:
			// keep the stall clock moving for calls already being processed
			pipe.ZAddXX(ctx, activeCallsKey, member)
		case u.ProcessingStatus.IsInFlight():
			pipe.ZAdd(ctx, activeCallsKey, member)
		default:
			pipe.ZRem(ctx, activeCallsKey, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}

// ListStalled returns in-flight calls not updated since before.
func (s *RedisStore) ListStalled(ctx context.Context, before time.Time, limit int) ([]*model.Call, error) {
	ids, err := s.redis.ZRangeByScore(ctx, activeCallsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(before.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list active calls: %w", err)
	}

	calls := make([]*model.Call, 0, len(ids))
	for _, id := range ids {
		call, err := s.GetCall(ctx, id)
		if errors.Is(err, ErrCallNotFound) {
			s.redis.ZRem(ctx, activeCallsKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !call.ProcessingStatus.IsInFlight() {
			s.redis.ZRem(ctx, activeCallsKey, id)
			continue
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// AppendLog pushes a progress event onto the call's capped log list.
func (s *RedisStore) AppendLog(ctx context.Context, entry *model.CallLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}

	key := callLogsKey(entry.CallID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -maxLogsPerCall, -1)
		pipe.Expire(ctx, key, logRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLogs returns up to limit most recent events, oldest first.
func (s *RedisStore) ListLogs(ctx context.Context, callID string, limit int) ([]model.CallLog, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	items, err := s.redis.LRange(ctx, callLogsKey(callID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}

	logs := make([]model.CallLog, 0, len(items))
	for _, item := range items {
		var entry model.CallLog
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *RedisStore) GetPromptForCategory(ctx context.Context, callType string) (string, bool, error) {
	prompt, err := s.redis.HGet(ctx, promptsKey, promptField(callType)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load prompt: %w", err)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", false, nil
	}
	return prompt, true, nil
}

func (s *RedisStore) UpsertPrompt(ctx context.Context, callType, prompt string) error {
	if err := s.redis.HSet(ctx, promptsKey, promptField(callType), prompt).Err(); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	return nil
}

func (s *RedisStore) DeactivatePrompt(ctx context.Context, callType string) error {
	n, err := s.redis.HDel(ctx, promptsKey, promptField(callType)).Result()
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	if n == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// GetBusinessContext reads the company hash (name plus questionnaire
// answers) and the caller's role. Missing records yield a nil context.
func (s *RedisStore) GetBusinessContext(ctx context.Context, call *model.Call) (*model.BusinessContext, error) {
	if call.CompanyID == "" && call.UserID == "" {
		return nil, nil
	}

	var company, user *redis.MapStringStringCmd
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if call.CompanyID != "" {
			company = pipe.HGetAll(ctx, companyKey(call.CompanyID))
		}
		if call.UserID != "" {
			user = pipe.HGetAll(ctx, userKey(call.UserID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load business context: %w", err)
	}

	var bc model.BusinessContext
	if company != nil {
		h := company.Val()
		bc.CompanyName = h["name"]
		bc.Industry = h["industry"]
		bc.ProductService = h["product_service"]
		bc.TargetAudience = h["target_audience"]
		bc.KeyDifferentiator = h["key_differentiator"]
		bc.CustomerBenefits = h["customer_benefits"]
	}
	if user != nil {
		bc.UserRole = user.Val()["role"]
	}

	if bc == (model.BusinessContext{}) {
		return nil, nil
	}
	return &bc, nil
}
