package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"studyguide.parallel/pkg/common"
)

const keyTTL = 24 * time.Hour

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, addr string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  addr,
		MaxRetries:            3,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           3 * time.Second,
		WriteTimeout:          3 * time.Second,
		ContextTimeoutEnabled: true,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func SliceKey(job string, dst, src int) string {
	return fmt.Sprintf("binarize:%s:p2p:%d:%d", job, dst, src)
}

func BarrierCountKey(job string, generation int) string {
	return fmt.Sprintf("binarize:%s:barrier:%d:count", job, generation)
}

func BarrierReleaseKey(job string, generation int) string {
	return fmt.Sprintf("binarize:%s:barrier:%d:release", job, generation)
}

func AbortKey(job string) string {
	return fmt.Sprintf("binarize:%s:abort", job)
}

// JobPattern matches every key belonging to job.
func JobPattern(job string) string {
	return fmt.Sprintf("binarize:%s:*", job)
}

// PushSlice appends msg to the point-to-point list at key.
func (r *RedisClient) PushSlice(ctx context.Context, key string, msg *common.RowSliceMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slice: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push slice: %w", err)
	}
	return nil
}

// PopSlice waits up to block for the next message at key. A nil message
// with a nil error means the wait timed out.
func (r *RedisClient) PopSlice(ctx context.Context, key string, block time.Duration) (*common.RowSliceMessage, error) {
	result, err := r.client.BLPop(ctx, block, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop slice: %w", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format")
	}

	var msg common.RowSliceMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slice: %w", err)
	}
	return &msg, nil
}

// Arrive increments the barrier counter and returns the arrival number.
func (r *RedisClient) Arrive(ctx context.Context, key string) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to arrive at barrier: %w", err)
	}
	return incr.Val(), nil
}

// Release pushes n tokens onto key, one for every waiter.
func (r *RedisClient) Release(ctx context.Context, key string, n int) error {
	tokens := make([]interface{}, n)
	for i := range tokens {
		tokens[i] = "1"
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, tokens...)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to release barrier: %w", err)
	}
	return nil
}

// WaitToken waits up to block for a token at key.
func (r *RedisClient) WaitToken(ctx context.Context, key string, block time.Duration) (bool, error) {
	_, err := r.client.BLPop(ctx, block, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to wait for token: %w", err)
	}
	return true, nil
}

// SetAbort records the first abort reason for a job.
func (r *RedisClient) SetAbort(ctx context.Context, key, reason string) error {
	return r.client.SetNX(ctx, key, reason, keyTTL).Err()
}

func (r *RedisClient) GetAbort(ctx context.Context, key string) (string, bool, error) {
	reason, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reason, true, nil
}

func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Count reads an integer counter. A missing key counts as zero.
func (r *RedisClient) Count(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return n, nil
}

// DeleteMatching removes every key matching pattern and returns how many
// were deleted.
func (r *RedisClient) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	if err := r.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", pattern, err)
	}
	return len(keys), nil
}
