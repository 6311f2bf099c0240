package common

import (
	"fmt"
	"image/color"
)

const (
	// THRESHOLD_VALUE separates black (gray < THRESHOLD_VALUE) from white.
	THRESHOLD_VALUE = 128
	BLOCK_SIZE      = 16

	WINDOW_WIDTH  = 640
	WINDOW_HEIGHT = 480
	WINDOW_TITLE  = "Thresholded Image"

	ROOT_RANK = 0
)

var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Partition is the half-open row range [StartRow, EndRow) owned by a rank.
type Partition struct {
	Rank     int `json:"rank"`
	StartRow int `json:"start_row"`
	EndRow   int `json:"end_row"`
}

func (p Partition) Rows() int {
	return p.EndRow - p.StartRow
}

func (p Partition) String() string {
	return fmt.Sprintf("rank %d rows [%d, %d)", p.Rank, p.StartRow, p.EndRow)
}

// RowSliceMessage carries a contiguous block of RGBA rows between ranks.
type RowSliceMessage struct {
	Type     string `json:"type"`
	Rank     int    `json:"rank"`
	StartRow int    `json:"start_row"`
	EndRow   int    `json:"end_row"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Stride   int    `json:"stride"`
	Encoding string `json:"encoding"`
	Data     []byte `json:"data"`

	// Set on results so the root can report per-rank times.
	TransformTime float64 `json:"transform_time,omitempty"`
}

const (
	MessageSlice  = "slice"
	MessageResult = "result"
	EncodingRaw   = "raw"
	EncodingZstd  = "zstd"
)
