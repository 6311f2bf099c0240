package stats

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PerformanceData holds timing and metadata for one binarization run
type PerformanceData struct {
	AlgorithmName string
	InputPath     string
	Width         int
	Height        int
	TransformTime float64
	TotalTime     float64
	Timestamp     time.Time

	// Algorithm-specific data
	Workers   *int            // For grid and distributed runs
	GridSize  *string         // For grid runs
	BlockSize *int            // For grid runs
	Strategy  *string         // For distributed runs
	RankTimes map[int]float64 // For distributed runs
}

// WritePerformanceResults writes a combined results file into dir and
// returns its path.
func WritePerformanceResults(dir, prefix string, results []PerformanceData) (string, error) {
	if len(results) == 0 {
		return "", nil
	}

	// Ensure logs directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Use timestamp from first result
	timestamp := results[0].Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, timestamp))

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	if err := WriteReport(file, results); err != nil {
		return "", err
	}

	log.Printf("Performance results written to %s", resultsFile)
	return resultsFile, nil
}

// WriteReport renders results in the plain text layout used by the logs files.
func WriteReport(w io.Writer, results []PerformanceData) error {
	if len(results) == 0 {
		return nil
	}

	ew := &errWriter{w: w}
	ew.printf("=== Combined Threshold Binarization Results ===\n")
	ew.printf("Timestamp: %s\n\n", results[0].Timestamp.Format("2006-01-02 15:04:05"))

	for _, result := range results {
		prefix := ""
		switch result.AlgorithmName {
		case "Sequential":
			prefix = "a_"
		case "Grid":
			prefix = "b_"
		case "Distributed":
			prefix = "c_"
		}

		ew.printf("=== %s%s Results ===\n", prefix, result.AlgorithmName)
		ew.printf("Input file: %s\n", result.InputPath)
		ew.printf("Image size: %dx%d\n", result.Width, result.Height)
		ew.printf("Transform time: %.6fs\n", result.TransformTime)
		ew.printf("Total execution time: %.2fs\n", result.TotalTime)

		if result.Workers != nil {
			ew.printf("Workers: %d\n", *result.Workers)
		}
		if result.GridSize != nil {
			ew.printf("Grid size: %s\n", *result.GridSize)
		}
		if result.BlockSize != nil {
			ew.printf("Block size: %dx%d\n", *result.BlockSize, *result.BlockSize)
		}
		if result.Strategy != nil {
			ew.printf("Strategy: %s\n", *result.Strategy)
		}

		if len(result.RankTimes) > 0 {
			ranks := make([]int, 0, len(result.RankTimes))
			for rank := range result.RankTimes {
				ranks = append(ranks, rank)
			}
			sort.Ints(ranks)

			ew.printf("\nRank transform times:\n")
			for _, rank := range ranks {
				ew.printf("  %d. %.6fs\n", rank, result.RankTimes[rank])
			}
		}

		ew.printf("\n")
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
