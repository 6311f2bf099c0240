// Package distributed runs the threshold transform across a fixed group of
// ranks. Each rank owns a contiguous row range; after a single barrier the
// root gathers every other rank's rows in rank order.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"studyguide.parallel/pkg/comm"
	"studyguide.parallel/pkg/common"
	"studyguide.parallel/pkg/partition"
	"studyguide.parallel/pkg/threshold"
)

var ErrSliceMismatch = errors.New("received slice does not match partition")

type Strategy string

const (
	// Replicate gives every rank its own full copy of the image.
	Replicate Strategy = "replicate"
	// Scatter keeps the only full copy on the root, which sends each rank
	// its rows.
	Scatter Strategy = "scatter"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Replicate, Scatter:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q (want %s or %s)", s, Replicate, Scatter)
}

// Loader returns the image a rank works on.
type Loader func(ctx context.Context) (*image.RGBA, error)

type Options struct {
	Strategy Strategy
	Encoding string
	// Out receives the per-rank timing line. Nil discards it.
	Out io.Writer
}

func DefaultOptions() Options {
	return Options{Strategy: Replicate, Encoding: common.EncodingZstd}
}

type Result struct {
	Rank          int
	Partition     common.Partition
	TransformTime time.Duration
	// Image and RankTimes are only set on the root.
	Image     *image.RGBA
	RankTimes map[int]float64
}

// Run executes one rank. Any failure is broadcast to the peers through
// c.Abort so nobody stays blocked in the barrier or the gather. Returned
// errors do not name the rank; Abort adds it to the reason peers see.
func Run(ctx context.Context, c comm.Comm, load Loader, opts Options) (*Result, error) {
	if opts.Strategy == "" {
		opts.Strategy = Replicate
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	res, err := run(ctx, c, load, opts)
	if err != nil && !errors.Is(err, comm.ErrAborted) {
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if abortErr := c.Abort(abortCtx, err); abortErr != nil {
			log.Printf("Rank %d: failed to signal abort: %v", c.Rank(), abortErr)
		}
	}
	return res, err
}

func run(ctx context.Context, c comm.Comm, load Loader, opts Options) (*Result, error) {
	rank := c.Rank()

	var (
		img        *image.RGBA
		part       common.Partition
		fullHeight int
		err        error
	)
	switch {
	case opts.Strategy == Replicate || rank == common.ROOT_RANK:
		img, err = load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		fullHeight = img.Bounds().Dy()
		part, err = partition.ForRank(fullHeight, c.Size(), rank)
		if err != nil {
			return nil, err
		}
		if opts.Strategy == Scatter {
			if err := scatter(ctx, c, img, opts); err != nil {
				return nil, err
			}
		}
	default:
		img, part, fullHeight, err = receiveSlice(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	// Compute phase: each rank touches only its own rows.
	localStart, localEnd := part.StartRow, part.EndRow
	if opts.Strategy == Scatter && rank != common.ROOT_RANK {
		localStart, localEnd = 0, part.Rows()
	}
	startTime := time.Now()
	threshold.ApplyRows(img, localStart, localEnd)
	elapsed := time.Since(startTime)
	fmt.Fprintf(opts.Out, "Process %d Execution Time: %f seconds\n", rank, elapsed.Seconds())

	if err := c.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("barrier: %w", err)
	}

	res := &Result{Rank: rank, Partition: part, TransformTime: elapsed}
	if rank == common.ROOT_RANK {
		res.Image = img
		res.RankTimes = map[int]float64{rank: elapsed.Seconds()}
		if err := gather(ctx, c, img, res.RankTimes); err != nil {
			return nil, err
		}
		return res, nil
	}

	out, err := encodeResult(img, part, localStart, localEnd, fullHeight, opts)
	if err != nil {
		return nil, err
	}
	out.TransformTime = elapsed.Seconds()
	if err := c.Send(ctx, common.ROOT_RANK, out); err != nil {
		return nil, fmt.Errorf("send to root: %w", err)
	}
	return res, nil
}

// encodeResult packs the locally processed rows, labelled with their
// position in the full image.
func encodeResult(img *image.RGBA, part common.Partition, localStart, localEnd, fullHeight int, opts Options) (*common.RowSliceMessage, error) {
	local := common.Partition{Rank: part.Rank, StartRow: localStart, EndRow: localEnd}
	out, err := comm.EncodeRows(img, local, common.MessageResult, opts.Encoding)
	if err != nil {
		return nil, err
	}
	out.StartRow, out.EndRow = part.StartRow, part.EndRow
	out.Height = fullHeight
	return out, nil
}

func scatter(ctx context.Context, c comm.Comm, img *image.RGBA, opts Options) error {
	parts, err := partition.Rows(img.Bounds().Dy(), c.Size())
	if err != nil {
		return err
	}
	for _, p := range parts[1:] {
		msg, err := comm.EncodeRows(img, p, common.MessageSlice, opts.Encoding)
		if err != nil {
			return err
		}
		if err := c.Send(ctx, p.Rank, msg); err != nil {
			return fmt.Errorf("scatter to rank %d: %w", p.Rank, err)
		}
	}
	return nil
}

func receiveSlice(ctx context.Context, c comm.Comm) (*image.RGBA, common.Partition, int, error) {
	msg, err := c.Recv(ctx, common.ROOT_RANK)
	if err != nil {
		return nil, common.Partition{}, 0, fmt.Errorf("receive slice: %w", err)
	}

	part, err := partition.ForRank(msg.Height, c.Size(), c.Rank())
	if err != nil {
		return nil, common.Partition{}, 0, err
	}
	if err := checkSlice(msg, part); err != nil {
		return nil, common.Partition{}, 0, err
	}

	img, err := comm.SliceImage(msg)
	if err != nil {
		return nil, common.Partition{}, 0, err
	}
	return img, part, msg.Height, nil
}

// gather receives rank 1..size-1 in order and writes each slice back at
// its row offset.
func gather(ctx context.Context, c comm.Comm, img *image.RGBA, rankTimes map[int]float64) error {
	parts, err := partition.Rows(img.Bounds().Dy(), c.Size())
	if err != nil {
		return err
	}

	for _, p := range parts[1:] {
		msg, err := c.Recv(ctx, p.Rank)
		if err != nil {
			return fmt.Errorf("gather from rank %d: %w", p.Rank, err)
		}
		if err := checkSlice(msg, p); err != nil {
			return err
		}
		if err := comm.WriteRows(img, msg); err != nil {
			return fmt.Errorf("gather from rank %d: %w", p.Rank, err)
		}
		rankTimes[p.Rank] = msg.TransformTime
	}
	return nil
}

func checkSlice(msg *common.RowSliceMessage, want common.Partition) error {
	if msg.Rank != want.Rank || msg.StartRow != want.StartRow || msg.EndRow != want.EndRow {
		return fmt.Errorf("%w: got rank %d rows [%d, %d), want %s",
			ErrSliceMismatch, msg.Rank, msg.StartRow, msg.EndRow, want)
	}
	return nil
}

// RunLocal starts size ranks as goroutines connected in memory. The first
// failing rank cancels the others. It returns the root's result.
func RunLocal(ctx context.Context, size int, load Loader, opts Options) (*Result, error) {
	comms, err := comm.NewLocal(size)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, size)
	errs := make([]error, size)
	g, gctx := errgroup.WithContext(ctx)
	for rank, c := range comms {
		rank, c := rank, c
		g.Go(func() error {
			res, err := Run(gctx, c, load, opts)
			if err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
				return errs[rank]
			}
			results[rank] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, rootCause(errs, err)
	}
	return results[common.ROOT_RANK], nil
}

// rootCause prefers the error of the rank that failed first over the
// aborts and cancellations it caused on its peers.
func rootCause(errs []error, fallback error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, comm.ErrAborted) && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return fallback
}
