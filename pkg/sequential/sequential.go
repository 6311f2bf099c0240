// Package sequential is the single-goroutine baseline: decode, threshold
// every pixel in one loop, show the result.
package sequential

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"time"

	"studyguide.parallel/pkg/display"
	"studyguide.parallel/pkg/imageio"
	"studyguide.parallel/pkg/stats"
	"studyguide.parallel/pkg/threshold"
)

type Options struct {
	Display display.Options
	// Hold is how long the window stays up. Zero skips the display step.
	Hold time.Duration
	// SavePath optionally writes the binarized image as PNG.
	SavePath string
	// Out receives the timing line. Nil discards it.
	Out io.Writer
}

func DefaultOptions() Options {
	return Options{
		Display: display.DefaultOptions(),
		Hold:    5 * time.Second,
	}
}

// Transform thresholds img in place and reports the elapsed time. A nil
// out discards the timing line.
func Transform(img *image.RGBA, out io.Writer) time.Duration {
	if out == nil {
		out = io.Discard
	}
	startTime := time.Now()
	threshold.Apply(img)
	elapsed := time.Since(startTime)
	fmt.Fprintf(out, "Execution Time: %f seconds\n", elapsed.Seconds())
	return elapsed
}

// Run processes a single image file.
func Run(ctx context.Context, inputPath string, opts Options) (stats.PerformanceData, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	log.Printf("=== Starting Sequential Threshold Binarization ===")
	startTime := time.Now()

	img, err := imageio.Load(inputPath)
	if err != nil {
		return stats.PerformanceData{}, err
	}
	log.Printf("Loaded %s (%dx%d)", inputPath, img.Bounds().Dx(), img.Bounds().Dy())

	elapsed := Transform(img, opts.Out)

	if opts.SavePath != "" {
		if err := imageio.SavePNG(opts.SavePath, img); err != nil {
			return stats.PerformanceData{}, err
		}
	}

	if opts.Hold > 0 {
		if err := display.ShowFor(ctx, img, opts.Display, opts.Hold); err != nil {
			return stats.PerformanceData{}, fmt.Errorf("display: %w", err)
		}
	}

	return stats.PerformanceData{
		AlgorithmName: "Sequential",
		InputPath:     inputPath,
		Width:         img.Bounds().Dx(),
		Height:        img.Bounds().Dy(),
		TransformTime: elapsed.Seconds(),
		TotalTime:     time.Since(startTime).Seconds(),
		Timestamp:     startTime,
	}, nil
}
