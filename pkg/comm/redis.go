package comm

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"studyguide.parallel/pkg/common"
	"studyguide.parallel/pkg/queue"
)

// DefaultPollInterval bounds each blocking Redis call so aborts and
// context cancellation are noticed. Redis blocking timeouts have one
// second resolution.
const DefaultPollInterval = time.Second

// Redis is a communicator for ranks running as separate processes that
// share a Redis server. All ranks of a job must use the same job id.
type Redis struct {
	q         *queue.RedisClient
	job       string
	rank      int
	size      int
	barriers  int
	poll      time.Duration
	ownClient bool
	closed    atomic.Bool
}

type RedisOption func(*Redis)

func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.poll = d }
}

// WithOwnedClient makes Close also close the Redis client.
func WithOwnedClient() RedisOption {
	return func(r *Redis) { r.ownClient = true }
}

func NewRedis(q *queue.RedisClient, job string, rank, size int, opts ...RedisOption) (*Redis, error) {
	if size < 1 {
		return nil, fmt.Errorf("cluster size must be at least 1, got %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrInvalidPeer, rank, size)
	}
	if job == "" {
		return nil, fmt.Errorf("job id must not be empty")
	}

	r := &Redis{q: q, job: job, rank: rank, size: size, poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// JoinRedis is NewRedis plus a check that job holds no leftovers from an
// earlier run: an abort flag or a barrier that already filled up. Such a
// job must be reset with ResetRedisJob or run under a new id. On error the
// client is left open.
func JoinRedis(ctx context.Context, q *queue.RedisClient, job string, rank, size int, opts ...RedisOption) (*Redis, error) {
	r, err := NewRedis(q, job, rank, size, opts...)
	if err != nil {
		return nil, err
	}

	reason, aborted, err := q.GetAbort(ctx, queue.AbortKey(job))
	if err != nil {
		return nil, fmt.Errorf("failed to read abort flag: %w", err)
	}
	if aborted {
		return nil, fmt.Errorf("%w: job %s was aborted by an earlier run (%s)", ErrStaleJob, job, reason)
	}

	n, err := q.Count(ctx, queue.BarrierCountKey(job, 0))
	if err != nil {
		return nil, err
	}
	if int(n) >= size {
		return nil, fmt.Errorf("%w: job %s already has %d barrier arrivals for %d ranks", ErrStaleJob, job, n, size)
	}
	return r, nil
}

// ResetRedisJob deletes every key of job. It must not run while any rank
// of that job is active.
func ResetRedisJob(ctx context.Context, q *queue.RedisClient, job string) (int, error) {
	if job == "" {
		return 0, fmt.Errorf("job id must not be empty")
	}
	return q.DeleteMatching(ctx, queue.JobPattern(job))
}

func (r *Redis) Rank() int { return r.rank }
func (r *Redis) Size() int { return r.size }

func (r *Redis) Barrier(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	generation := r.barriers
	r.barriers++
	countKey := queue.BarrierCountKey(r.job, generation)
	releaseKey := queue.BarrierReleaseKey(r.job, generation)

	n, err := r.q.Arrive(ctx, countKey)
	if err != nil {
		return err
	}
	if int(n) > r.size {
		return fmt.Errorf("%w: arrival %d at barrier %d of job %s with %d ranks", ErrStaleJob, n, generation, r.job, r.size)
	}
	if int(n) == r.size {
		if err := r.q.Release(ctx, releaseKey, r.size); err != nil {
			return err
		}
	}

	for {
		ok, err := r.q.WaitToken(ctx, releaseKey, r.poll)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := r.checkAbort(ctx); err != nil {
			return err
		}
	}
}

func (r *Redis) Send(ctx context.Context, dst int, msg *common.RowSliceMessage) error {
	if err := checkPeer(r.rank, dst, r.size); err != nil {
		return err
	}
	if err := r.checkAbort(ctx); err != nil {
		return err
	}
	return r.q.PushSlice(ctx, queue.SliceKey(r.job, dst, r.rank), msg)
}

func (r *Redis) Recv(ctx context.Context, src int) (*common.RowSliceMessage, error) {
	if err := checkPeer(r.rank, src, r.size); err != nil {
		return nil, err
	}

	if r.closed.Load() {
		return nil, ErrClosed
	}
	key := queue.SliceKey(r.job, r.rank, src)
	for {
		msg, err := r.q.PopSlice(ctx, key, r.poll)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		if err := r.checkAbort(ctx); err != nil {
			return nil, err
		}
	}
}

func (r *Redis) Abort(ctx context.Context, cause error) error {
	reason := fmt.Sprintf("rank %d: %v", r.rank, cause)
	log.Printf("Rank %d: aborting job %s: %v", r.rank, r.job, cause)
	return r.q.SetAbort(ctx, queue.AbortKey(r.job), reason)
}

func (r *Redis) checkAbort(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	reason, aborted, err := r.q.GetAbort(ctx, queue.AbortKey(r.job))
	if err != nil {
		return fmt.Errorf("failed to read abort flag: %w", err)
	}
	if aborted {
		return abortError(reason)
	}
	return nil
}

// Cleanup removes the barrier keys this rank has used. Only the root calls
// it, once the gather has finished.
func (r *Redis) Cleanup(ctx context.Context) error {
	keys := make([]string, 0, 2*r.barriers)
	for generation := 0; generation < r.barriers; generation++ {
		keys = append(keys, queue.BarrierCountKey(r.job, generation), queue.BarrierReleaseKey(r.job, generation))
	}
	if err := r.q.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clean up job %s: %w", r.job, err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.ownClient {
		return r.q.Close()
	}
	return nil
}
