package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"fall-detection/fall"
	"fall-detection/pose"

	"github.com/google/go-cmp/cmp"
)

// Runs the detector several times over one recording and checks that every
// run yields the same result.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run main.go <recording.jsonl> [runs]")
	}

	testFile := os.Args[1]
	numRuns := 5
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n < 2 {
			log.Fatalf("invalid run count %q", os.Args[2])
		}
		numRuns = n
	}
	log.Printf("Testing determinism with: %s (%d runs)\n", testFile, numRuns)

	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var results []*fall.RunResult
	for i := 0; i < numRuns; i++ {
		result, err := runOnce(testFile, func() time.Time { return fixed })
		if err != nil {
			log.Fatalf("Run %d failed: %v", i+1, err)
		}
		results = append(results, result)
		log.Printf("Run %d: %d frames, %d falls", i+1, result.TotalFrames, result.TotalFalls)
	}

	fmt.Println("\n=== Determinism Check ===")
	allIdentical := true
	for i := 1; i < numRuns; i++ {
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			allIdentical = false
			fmt.Printf("❌ Run %d differs from run 1 (-run1 +run%d):\n%s\n", i+1, i+1, diff)
		}
	}

	if !allIdentical {
		fmt.Println("❌ Detection is NON-DETERMINISTIC")
		os.Exit(1)
	}
	fmt.Println("✅ All runs produced IDENTICAL results")
	for _, e := range results[0].FallEvents {
		fmt.Printf("   fall at frame %d (%.2fs, %.1f%%)\n", e.FrameIndex, e.TimestampSeconds, e.ConfidencePercent)
	}
}

func runOnce(path string, clock func() time.Time) (*fall.RunResult, error) {
	rec, err := pose.OpenRecording(path)
	if err != nil {
		return nil, err
	}
	defer rec.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fall.NewDetector(pose.Attached{}, fall.DefaultConfig(),
		fall.WithEventClock(clock),
		fall.WithLogger(quiet),
		fall.WithProgressInterval(0),
	).Run(context.Background(), rec)
}
