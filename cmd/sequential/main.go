package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"studyguide.parallel/pkg/display"
	"studyguide.parallel/pkg/sequential"
	"studyguide.parallel/pkg/stats"
)

func newCommand() *cobra.Command {
	opts := sequential.DefaultOptions()
	var (
		fit       bool
		windowOut string
		withStats bool
		statsDir  string
	)

	cmd := &cobra.Command{
		Use:           "sequential <image_path>",
		Short:         "Binarize an image with a single sequential pixel loop",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.Out = cmd.OutOrStdout()
			opts.Display.Fit = fit
			if windowOut != "" {
				opts.Display.Presenter = display.PNGPresenter{Path: windowOut}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := sequential.Run(ctx, args[0], opts)
			if err != nil {
				return err
			}
			if withStats {
				if _, err := stats.WritePerformanceResults(statsDir, "a_", []stats.PerformanceData{result}); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&opts.Hold, "hold", 5*time.Second, "How long the window stays open (0 skips the display)")
	flags.BoolVar(&fit, "fit", false, "Scale the image into the window instead of cropping")
	flags.StringVar(&windowOut, "window-out", "", "Write the rendered window frame to this PNG")
	flags.StringVar(&opts.SavePath, "save", "", "Save the binarized image as PNG")
	flags.BoolVar(&withStats, "stats", false, "Write a performance report")
	flags.StringVar(&statsDir, "stats-dir", "logs", "Directory for performance reports")

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
