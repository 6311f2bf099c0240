package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"studyguide.parallel/pkg/comm"
	"studyguide.parallel/pkg/common"
	"studyguide.parallel/pkg/display"
	"studyguide.parallel/pkg/distributed"
	"studyguide.parallel/pkg/imageio"
	"studyguide.parallel/pkg/queue"
	"studyguide.parallel/pkg/stats"
)

type options struct {
	local     int
	rank      int
	size      int
	redisAddr string
	job       string
	reset     bool
	strategy  string
	encoding  string
	timeout   time.Duration

	hold      time.Duration
	fit       bool
	windowOut string
	savePath  string
	withStats bool
	statsDir  string
}

func newCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "distributed <image_path>",
		Short: "Binarize an image across a group of ranks that each own a row slice",
		Long: `Each rank thresholds a contiguous range of rows. After a barrier rank 0
gathers every slice in rank order and shows the result.

Run an in-process cluster with --local N, or start one process per rank
sharing a Redis server with --rank, --size, --redis and --job. A job id
left behind by a failed run is refused; clear it with --reset or pick a
new id.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.reset {
				return cobra.MaximumNArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.local == 0 && opts.job == "" {
				return errors.New("--job is required unless --local is set")
			}
			cmd.SilenceUsage = true
			if _, err := distributed.ParseStrategy(opts.strategy); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			if opts.reset {
				return resetJob(ctx, opts)
			}
			return run(ctx, cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.local, "local", 0, "Run N ranks in this process instead of using Redis")
	flags.IntVar(&opts.rank, "rank", 0, "Rank of this process")
	flags.IntVar(&opts.size, "size", 1, "Number of ranks in the job")
	flags.StringVar(&opts.redisAddr, "redis", "localhost:6379", "Redis address")
	flags.StringVar(&opts.job, "job", "", "Job id shared by all ranks of one run (required with Redis)")
	flags.BoolVar(&opts.reset, "reset", false, "Delete the Redis state of --job and exit")
	flags.StringVar(&opts.strategy, "strategy", string(distributed.Replicate), "Data distribution: replicate or scatter")
	flags.StringVar(&opts.encoding, "encoding", common.EncodingZstd, "Row payload encoding: raw or zstd")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long (0 waits forever)")
	flags.DurationVar(&opts.hold, "hold", 10*time.Second, "How long the root keeps the window open (0 skips the display)")
	flags.BoolVar(&opts.fit, "fit", false, "Scale the image into the window instead of cropping")
	flags.StringVar(&opts.windowOut, "window-out", "", "Write the rendered window frame to this PNG")
	flags.StringVar(&opts.savePath, "save", "", "Save the gathered image as PNG")
	flags.BoolVar(&opts.withStats, "stats", false, "Write a performance report on the root")
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
	startTime := time.Now()
	runOpts := distributed.Options{
		Strategy: distributed.Strategy(opts.strategy),
		Encoding: opts.encoding,
		Out:      cmd.OutOrStdout(),
	}

	load := func(context.Context) (*image.RGBA, error) {
		return imageio.Load(inputPath)
	}

	var (
		result *distributed.Result
		size   int
		err    error
	)
	if opts.local > 0 {
		size = opts.local
		log.Printf("=== Starting Distributed Threshold Binarization (%d local ranks, %s) ===", size, opts.strategy)
		result, err = distributed.RunLocal(ctx, size, load, runOpts)
	} else {
		size = opts.size
		log.Printf("=== Starting Distributed Threshold Binarization (rank %d of %d, %s) ===", opts.rank, size, opts.strategy)
		result, err = runRedis(ctx, opts, load, runOpts)
	}
	if err != nil {
		return err
	}
	if result.Rank != common.ROOT_RANK {
		log.Printf("Rank %d: slice %s sent to root", result.Rank, result.Partition)
		return nil
	}

	if opts.savePath != "" {
		if err := imageio.SavePNG(opts.savePath, result.Image); err != nil {
			return err
		}
	}

	if opts.hold > 0 {
		displayOpts := display.DefaultOptions()
		displayOpts.Fit = opts.fit
		if opts.windowOut != "" {
			displayOpts.Presenter = display.PNGPresenter{Path: opts.windowOut}
		}
		if err := display.ShowFor(ctx, result.Image, displayOpts, opts.hold); err != nil {
			return fmt.Errorf("display: %w", err)
		}
	}

	if opts.withStats {
		data := stats.PerformanceData{
			AlgorithmName: "Distributed",
			InputPath:     inputPath,
			Width:         result.Image.Bounds().Dx(),
			Height:        result.Image.Bounds().Dy(),
			TransformTime: result.TransformTime.Seconds(),
			TotalTime:     time.Since(startTime).Seconds(),
			Timestamp:     startTime,
			Workers:       &size,
			Strategy:      &opts.strategy,
			RankTimes:     result.RankTimes,
		}
		if _, err := stats.WritePerformanceResults(opts.statsDir, "c_", []stats.PerformanceData{data}); err != nil {
			return err
		}
	}
	return nil
}

func runRedis(ctx context.Context, opts options, load distributed.Loader, runOpts distributed.Options) (*distributed.Result, error) {
	q, err := queue.NewRedisClient(ctx, opts.redisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c, err := comm.JoinRedis(ctx, q, opts.job, opts.rank, opts.size, comm.WithOwnedClient())
	if err != nil {
		q.Close()
		return nil, err
	}
	defer c.Close()

	result, err := distributed.Run(ctx, c, load, runOpts)
	if err != nil {
		if errors.Is(err, comm.ErrAborted) {
			return nil, fmt.Errorf("job %s, rank %d: %w", opts.job, opts.rank, err)
		}
		return nil, fmt.Errorf("rank %d: %w", opts.rank, err)
	}

	if result.Rank == common.ROOT_RANK {
		if err := c.Cleanup(ctx); err != nil {
			log.Printf("Rank %d: %v", result.Rank, err)
		}
	}
	return result, nil
}

func resetJob(ctx context.Context, opts options) error {
	q, err := queue.NewRedisClient(ctx, opts.redisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer q.Close()

	n, err := comm.ResetRedisJob(ctx, q, opts.job)
	if err != nil {
		return err
	}
	log.Printf("Job %s: removed %d keys", opts.job, n)
	return nil
}
