package comm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"studyguide.parallel/pkg/common"
)

type cluster struct {
	size  int
	links []chan *common.RowSliceMessage // indexed dst*size + src

	mu      sync.Mutex
	arrived int
	release chan struct{}

	abortOnce sync.Once
	aborted   chan struct{}
	reason    string
}

// Local is an in-process communicator backed by channels.
type Local struct {
	c      *cluster
	rank   int
	closed atomic.Bool
}

// NewLocal creates size connected communicators, one per rank.
func NewLocal(size int) ([]*Local, error) {
	if size < 1 {
		return nil, fmt.Errorf("cluster size must be at least 1, got %d", size)
	}

	c := &cluster{
		size:    size,
		links:   make([]chan *common.RowSliceMessage, size*size),
		release: make(chan struct{}),
		aborted: make(chan struct{}),
	}
	for i := range c.links {
		c.links[i] = make(chan *common.RowSliceMessage, 4)
	}

	comms := make([]*Local, size)
	for rank := range comms {
		comms[rank] = &Local{c: c, rank: rank}
	}
	return comms, nil
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.c.size }

func (l *Local) Barrier(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.c.mu.Lock()
	release := l.c.release
	l.c.arrived++
	if l.c.arrived == l.c.size {
		close(release)
		l.c.arrived = 0
		l.c.release = make(chan struct{})
	}
	l.c.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-l.c.aborted:
		return abortError(l.c.reason)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Send(ctx context.Context, dst int, msg *common.RowSliceMessage) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := checkPeer(l.rank, dst, l.c.size); err != nil {
		return err
	}

	select {
	case l.c.links[dst*l.c.size+l.rank] <- msg:
		return nil
	case <-l.c.aborted:
		return abortError(l.c.reason)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Recv(ctx context.Context, src int) (*common.RowSliceMessage, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := checkPeer(l.rank, src, l.c.size); err != nil {
		return nil, err
	}

	select {
	case msg := <-l.c.links[l.rank*l.c.size+src]:
		return msg, nil
	case <-l.c.aborted:
		return nil, abortError(l.c.reason)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Local) Abort(_ context.Context, cause error) error {
	l.c.abortOnce.Do(func() {
		l.c.reason = fmt.Sprintf("rank %d: %v", l.rank, cause)
		close(l.c.aborted)
	})
	return nil
}

// Close detaches this rank. Peers are not notified.
func (l *Local) Close() error {
	l.closed.Store(true)
	return nil
}
