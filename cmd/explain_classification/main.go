package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"fall-detection/fall"
	"fall-detection/pose"
)

// explainer prints the reasoning behind every classified frame.
type explainer struct {
	cfg fall.Config
	all bool
}

func (e *explainer) OnFrame(_ context.Context, _ fall.Frame, report fall.FrameReport) error {
	c := report.Classification
	if !e.all && c.Counter == 0 && !c.Indicated {
		return nil
	}

	f := report.Features
	if report.Inconclusive {
		fmt.Printf("%5d  %-44s %-16s counter=%d\n", report.Index, "inconclusive (missing joints)", c.Status.Label(), c.Counter)
		return nil
	}

	wide := mark(f.AspectRatio > e.cfg.RatioThreshold)
	low := mark(f.LowestPointY > e.cfg.LowYThreshold)
	tilted := mark(f.BodyAngleDegrees > e.cfg.AngleThreshold)
	fmt.Printf("%5d  ratio=%5.2f%s angle=%5.1f%s lowY=%4.2f%s  %-16s counter=%d conf=%5.1f%%",
		report.Index, f.AspectRatio, wide, f.BodyAngleDegrees, tilted, f.LowestPointY, low,
		c.Status.Label(), c.Counter, c.Confidence)
	if c.Event != nil {
		fmt.Print("  <- FALL CONFIRMED")
	}
	fmt.Println()
	return nil
}

func mark(ok bool) string {
	if ok {
		return "*"
	}
	return " "
}

// Explain WHY frames are classified the way they are
func main() {
	configPath := flag.String("config", "", "Optional YAML file with classifier thresholds")
	all := flag.Bool("all", false, "Print every frame, not only frames with fall evidence")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run main.go [-config thresholds.yaml] [-all] <recording.jsonl>")
	}
	path := flag.Arg(0)

	cfg, err := fall.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	rec, err := pose.OpenRecording(path)
	if err != nil {
		log.Fatalf("Failed to open recording: %v", err)
	}
	defer rec.Close()

	fmt.Printf("=== Explaining Classification for: %s ===\n\n", filepath.Base(path))
	fmt.Printf("📊 Rule: ratio > %.2f AND (lowY > %.2f OR angle > %.0f)\n", cfg.RatioThreshold, cfg.LowYThreshold, cfg.AngleThreshold)
	fmt.Printf("   Confirm after %d indicated frames, decay %d per clean frame\n", cfg.ConfirmFrames, cfg.DecayStep)
	fmt.Printf("   Recording: %d frames at %d fps\n\n", rec.FrameCount(), rec.FPS())
	fmt.Println("   (* marks a feature above its threshold)")
	fmt.Println()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, err := fall.NewDetector(pose.Attached{}, cfg,
		fall.WithObserver(&explainer{cfg: cfg, all: *all}),
		fall.WithLogger(quiet),
		fall.WithProgressInterval(0),
	).Run(context.Background(), rec)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}

	s := result.Summary
	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Frames: %d (person in %d, inconclusive %d)\n", result.TotalFrames, s.PersonFrames, s.InconclusiveFrames)
	fmt.Printf("Aspect ratio max %.2f, body angle max %.1f, lowest point max %.2f\n",
		s.AspectRatio.Max, s.BodyAngle.Max, s.LowestPointY.Max)
	fmt.Printf("Falls detected: %d\n", result.TotalFalls)
	for _, e := range result.FallEvents {
		fmt.Printf("  frame %d at %.2fs, confidence %.1f%%\n", e.FrameIndex, e.TimestampSeconds, e.ConfidencePercent)
	}
}
