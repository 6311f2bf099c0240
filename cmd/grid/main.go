package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"studyguide.parallel/pkg/common"
	"studyguide.parallel/pkg/grid"
	"studyguide.parallel/pkg/imageio"
	"studyguide.parallel/pkg/stats"
	"studyguide.parallel/pkg/threshold"
)

type options struct {
	workers   int
	savePath  string
	withStats bool
	statsDir  string
}

func newCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "grid <image_path>",
		Short:         "Binarize an image on an emulated grid of 16x16 thread blocks",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0), "Number of device workers (multiprocessors)")
	flags.StringVar(&opts.savePath, "save", "", "Save the binarized luminance plane as PNG")
	flags.BoolVar(&opts.withStats, "stats", false, "Write a performance report")
	flags.StringVar(&opts.statsDir, "stats-dir", "logs", "Directory for performance reports")

	return cmd
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cmd *cobra.Command, inputPath string, opts options) error {
	log.Printf("=== Starting Grid Threshold Binarization ===")
	startTime := time.Now()

	img, err := imageio.Load(inputPath)
	if err != nil {
		return err
	}

	dev := grid.NewDevice(opts.workers)
	defer dev.Close()
	log.Printf("Device: %s", dev.Info())

	result, err := grid.Run(ctx, dev, img)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Grid Size: %s\n", result.Grid)
	fmt.Fprintf(out, "Execution Time: %f seconds\n", result.Elapsed.Seconds())

	if !threshold.IsBinary(result.Gray) {
		return fmt.Errorf("device output is not binary")
	}

	if opts.savePath != "" {
		if err := imageio.SavePNG(opts.savePath, result.Gray); err != nil {
			return err
		}
	}

	if opts.withStats {
		workers := dev.Workers()
		gridSize := result.Grid.String()
		blockSize := common.BLOCK_SIZE
		data := stats.PerformanceData{
			AlgorithmName: "Grid",
			InputPath:     inputPath,
			Width:         img.Bounds().Dx(),
			Height:        img.Bounds().Dy(),
			TransformTime: result.Elapsed.Seconds(),
			TotalTime:     time.Since(startTime).Seconds(),
			Timestamp:     startTime,
			Workers:       &workers,
			GridSize:      &gridSize,
			BlockSize:     &blockSize,
		}
		if _, err := stats.WritePerformanceResults(opts.statsDir, "b_", []stats.PerformanceData{data}); err != nil {
			return err
		}
	}
	return nil
}
