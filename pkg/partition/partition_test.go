package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowsCoverEveryRowOnce(t *testing.T) {
	for _, height := range []int{1, 2, 7, 16, 480, 481, 1023} {
		for workers := 1; workers <= height && workers <= 64; workers++ {
			parts, err := Rows(height, workers)
			require.NoError(t, err)
			require.Len(t, parts, workers)

			next := 0
			for rank, p := range parts {
				assert.Equal(t, rank, p.Rank)
				assert.Equal(t, next, p.StartRow, "height=%d workers=%d rank=%d", height, workers, rank)
				assert.LessOrEqual(t, p.StartRow, p.EndRow)
				next = p.EndRow
			}
			assert.Equal(t, height, next, "height=%d workers=%d", height, workers)
		}
	}
}

func TestRowsLastAbsorbsRemainder(t *testing.T) {
	parts, err := Rows(10, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, parts[0].Rows())
	assert.Equal(t, 3, parts[1].Rows())
	assert.Equal(t, 4, parts[2].Rows())
	assert.Equal(t, 6, parts[2].StartRow)
}

func TestRowsSingleWorker(t *testing.T) {
	parts, err := Rows(480, 1)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 0, parts[0].StartRow)
	assert.Equal(t, 480, parts[0].EndRow)
}

func TestRowsMoreWorkersThanRows(t *testing.T) {
	parts, err := Rows(3, 5)
	require.NoError(t, err)

	for _, p := range parts[:4] {
		assert.Equal(t, 0, p.Rows())
	}
	assert.Equal(t, 0, parts[4].StartRow)
	assert.Equal(t, 3, parts[4].EndRow)
}

func TestRowsInvalidWorkers(t *testing.T) {
	_, err := Rows(10, 0)
	assert.ErrorIs(t, err, ErrInvalidWorkers)
}

func TestForRank(t *testing.T) {
	p, err := ForRank(100, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 50, p.StartRow)
	assert.Equal(t, 75, p.EndRow)

	_, err = ForRank(100, 4, 4)
	assert.ErrorIs(t, err, ErrInvalidRank)
	_, err = ForRank(100, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidWorkers)
}

func TestGrid(t *testing.T) {
	g := Grid(640, 480, 16)
	assert.Equal(t, 40, g.X)
	assert.Equal(t, 30, g.Y)
	assert.Equal(t, "(40, 30)", g.String())

	g = Grid(641, 1, 16)
	assert.Equal(t, 41, g.X)
	assert.Equal(t, 1, g.Y)
	assert.Equal(t, 41*16*16, g.Threads())
}

func TestGridCoversEveryPixel(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {15, 17}, {16, 16}, {33, 5}, {640, 480}} {
		g := Grid(dims[0], dims[1], 16)
		assert.GreaterOrEqual(t, g.X*g.Block, dims[0])
		assert.GreaterOrEqual(t, g.Y*g.Block, dims[1])
		assert.Less(t, (g.X-1)*g.Block, dims[0])
		assert.Less(t, (g.Y-1)*g.Block, dims[1])
	}
}
