package grid

import (
	"context"
	"fmt"
	"image"
	"time"

	"studyguide.parallel/pkg/common"
	"studyguide.parallel/pkg/partition"
	"studyguide.parallel/pkg/threshold"
)

// ThresholdKernel binarizes a width x height luminance plane held in buf.
// Threads outside the image do nothing.
func ThresholdKernel(buf *Buffer, width, height int) Kernel {
	data := buf.data
	return func(t Thread) {
		x, y := t.Global()
		if x < width && y < height {
			index := y*width + x
			data[index] = threshold.Binary(data[index])
		}
	}
}

type Result struct {
	Gray    *image.Gray
	Grid    partition.GridDim
	Elapsed time.Duration
}

// Run converts img to luminance on the host, thresholds it on dev and
// copies the plane back.
func Run(ctx context.Context, dev *Device, img *image.RGBA) (*Result, error) {
	host := threshold.ToGray(img)
	width, height := host.Rect.Dx(), host.Rect.Dy()

	deviceImage, err := dev.Malloc(len(host.Pix))
	if err != nil {
		return nil, fmt.Errorf("device malloc: %w", err)
	}
	defer dev.Free(deviceImage)

	if err := dev.CopyToDevice(deviceImage, host.Pix); err != nil {
		return nil, fmt.Errorf("copy to device: %w", err)
	}

	dim := partition.Grid(width, height, common.BLOCK_SIZE)
	block := Dim2(common.BLOCK_SIZE, common.BLOCK_SIZE)

	startTime := time.Now()
	if dim.Blocks() > 0 {
		if err := dev.Launch(Dim2(dim.X, dim.Y), block, ThresholdKernel(deviceImage, width, height)); err != nil {
			return nil, fmt.Errorf("launch kernel: %w", err)
		}
		if err := dev.Synchronize(ctx); err != nil {
			return nil, fmt.Errorf("synchronize: %w", err)
		}
	}
	elapsed := time.Since(startTime)

	if err := dev.CopyToHost(host.Pix, deviceImage); err != nil {
		return nil, fmt.Errorf("copy to host: %w", err)
	}

	return &Result{Gray: host, Grid: dim, Elapsed: elapsed}, nil
}
