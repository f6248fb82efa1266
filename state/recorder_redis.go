package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRecordTTL = 24 * time.Hour

// RedisRecorder records runs in Redis, so several monitor instances can share history
type RedisRecorder struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	limit  int64
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithTTL sets the time-to-live of recorded runs, 0 disables expiration
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRecorder) {
		r.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) {
		r.prefix = prefix
	}
}

// WithLimit caps the number of states kept per run
func WithLimit(limit int) RedisOption {
	return func(r *RedisRecorder) {
		r.limit = int64(limit)
	}
}

func NewRedisRecorder(client redis.UniversalClient, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		client: client,
		ttl:    defaultRecordTTL,
		prefix: "flowwatch",
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *RedisRecorder) runKey(instanceId string) string {
	return fmt.Sprintf("%s:run:%s", r.prefix, instanceId)
}

func (r *RedisRecorder) statesKey(instanceId string) string {
	return fmt.Sprintf("%s:run:%s:states", r.prefix, instanceId)
}

func (r *RedisRecorder) RecordStart(ctx context.Context, run *RunInfo) error {
	if run == nil || run.InstanceId == "" {
		return ErrRunNotFound
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.runKey(run.InstanceId), data, r.ttl)
	pipe.Del(ctx, r.statesKey(run.InstanceId))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

func (r *RedisRecorder) RecordState(ctx context.Context, rs *RunState) error {
	if rs == nil || rs.InstanceId == "" {
		return ErrRunNotFound
	}

	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := r.statesKey(rs.InstanceId)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.limit > 0 {
		pipe.LTrim(ctx, key, -r.limit, -1)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

func (r *RedisRecorder) RecordDone(ctx context.Context, run *RunInfo) error {
	if run == nil || run.InstanceId == "" {
		return ErrRunNotFound
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := r.client.Set(ctx, r.runKey(run.InstanceId), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisRecorder) History(ctx context.Context, instanceId string) (*RunInfo, []*RunState, error) {
	data, err := r.client.Get(ctx, r.runKey(instanceId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrRunNotFound
		}
		return nil, nil, fmt.Errorf("redis get failed: %w", err)
	}

	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	raw, err := r.client.LRange(ctx, r.statesKey(instanceId), 0, -1).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	states := make([]*RunState, 0, len(raw))
	for _, item := range raw {
		var rs RunState
		if err := json.Unmarshal([]byte(item), &rs); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
		states = append(states, &rs)
	}

	return &info, states, nil
}
