// Package comm provides the point-to-point and collective operations the
// distributed variant needs: a barrier, blocking send/receive of row
// slices, and an abort signal that unblocks every peer.
package comm

import (
	"context"
	"errors"
	"fmt"

	"studyguide.parallel/pkg/common"
)

var (
	ErrAborted     = errors.New("job aborted by peer")
	ErrInvalidPeer = errors.New("invalid peer rank")
	ErrClosed      = errors.New("communicator closed")
	// ErrStaleJob means the job id still carries state from an earlier run.
	ErrStaleJob    = errors.New("stale job state")
)

// Comm is one rank's view of a fixed-size group.
type Comm interface {
	Rank() int
	Size() int
	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error
	Send(ctx context.Context, dst int, msg *common.RowSliceMessage) error
	// Recv blocks until a message from src arrives. Messages from one
	// source are delivered in send order.
	Recv(ctx context.Context, src int) (*common.RowSliceMessage, error)
	// Abort wakes every peer blocked in Barrier or Recv with ErrAborted.
	Abort(ctx context.Context, cause error) error
	Close() error
}

func checkPeer(self, peer, size int) error {
	if peer < 0 || peer >= size || peer == self {
		return fmt.Errorf("%w: %d (self %d, size %d)", ErrInvalidPeer, peer, self, size)
	}
	return nil
}

func abortError(reason string) error {
	return fmt.Errorf("%w: %s", ErrAborted, reason)
}
