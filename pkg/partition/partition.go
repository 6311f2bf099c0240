package partition

import (
	"errors"
	"fmt"

	"studyguide.parallel/pkg/common"
)

var (
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
	ErrInvalidRank    = errors.New("rank out of range")
)

// Rows splits height rows across workers. Each rank gets height/workers
// rows and the last rank absorbs the remainder.
func Rows(height, workers int) ([]common.Partition, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}

	parts := make([]common.Partition, workers)
	for rank := 0; rank < workers; rank++ {
		parts[rank] = slice(height, workers, rank)
	}
	return parts, nil
}

// ForRank returns the partition owned by a single rank.
func ForRank(height, workers, rank int) (common.Partition, error) {
	if workers < 1 {
		return common.Partition{}, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	if rank < 0 || rank >= workers {
		return common.Partition{}, fmt.Errorf("%w: rank %d of %d", ErrInvalidRank, rank, workers)
	}
	return slice(height, workers, rank), nil
}

func slice(height, workers, rank int) common.Partition {
	rowsPerWorker := height / workers
	start := rank * rowsPerWorker
	end := start + rowsPerWorker
	if rank == workers-1 {
		end = height
	}
	return common.Partition{Rank: rank, StartRow: start, EndRow: end}
}

// GridDim is the number of blocks along each axis.
type GridDim struct {
	X, Y  int
	Block int
}

// Grid covers a width x height image with block x block tiles, rounding up.
func Grid(width, height, block int) GridDim {
	if block < 1 {
		block = common.BLOCK_SIZE
	}
	return GridDim{
		X:     (width + block - 1) / block,
		Y:     (height + block - 1) / block,
		Block: block,
	}
}

func (g GridDim) Blocks() int {
	return g.X * g.Y
}

func (g GridDim) Threads() int {
	return g.Blocks() * g.Block * g.Block
}

func (g GridDim) String() string {
	return fmt.Sprintf("(%d, %d)", g.X, g.Y)
}
