package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"fall-detection/fall"
)

var rule = strings.Repeat("=", 60)

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, title, rule)
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Fall Detection System")
	fmt.Fprintln(w, rule)
}

// printResults writes the human readable result block.
func printResults(w io.Writer, result *fall.RunResult) {
	printSection(w, "DETECTION RESULTS")
	fmt.Fprintf(w, "Total frames processed: %d\n", result.TotalFrames)
	fmt.Fprintf(w, "Video FPS: %d\n", result.FPS)
	fmt.Fprintf(w, "Total falls detected: %d\n", result.TotalFalls)

	if len(result.FallEvents) == 0 {
		fmt.Fprintln(w, "\nNo falls detected in the video.")
		return
	}

	fmt.Fprintln(w, "\nFall Events:")
	for i, event := range result.FallEvents {
		fmt.Fprintf(w, "\n  Event %d:\n", i+1)
		fmt.Fprintf(w, "    - Timestamp: %.2fs (frame %d)\n", event.TimestampSeconds, event.FrameIndex)
		fmt.Fprintf(w, "    - Confidence: %.1f%%\n", event.ConfidencePercent)
		fmt.Fprintf(w, "    - DateTime: %s\n", event.WallClockTime)
	}
}

// printMetrics writes the accuracy metrics and per-run statistics.
func printMetrics(w io.Writer, result *fall.RunResult) {
	printSection(w, "ACCURACY METRICS")
	if len(result.FallEvents) == 0 {
		fmt.Fprintln(w, "No falls detected - accuracy cannot be calculated")
	} else {
		fmt.Fprintf(w, "Average Detection Confidence: %.1f%%\n", result.Summary.AverageConfidence)
		fmt.Fprintf(w, "Detection Rate: %d falls detected\n", len(result.FallEvents))
		fmt.Fprintln(w, "False Positive Rate: N/A (requires labeled ground truth)")
	}

	s := result.Summary
	if result.TotalFrames == 0 {
		return
	}
	fmt.Fprintf(w, "\nFrames with a person: %d/%d\n", s.PersonFrames, result.TotalFrames)
	fmt.Fprintf(w, "Inconclusive frames: %d\n", s.InconclusiveFrames)
	for _, status := range []fall.Status{fall.StatusStanding, fall.StatusPotentialFall, fall.StatusFallDetected} {
		fmt.Fprintf(w, "  %-15s %d\n", status.Label()+":", s.StatusFrames[status])
	}
	fmt.Fprintf(w, "Peak confidence: %.1f%%\n", s.PeakConfidence)
	fmt.Fprintf(w, "Aspect ratio (mean/max): %.2f / %.2f\n", s.AspectRatio.Mean, s.AspectRatio.Max)
	fmt.Fprintf(w, "Body angle (mean/max): %.1f / %.1f\n", s.BodyAngle.Mean, s.BodyAngle.Max)
	fmt.Fprintf(w, "Lowest point (mean/max): %.2f / %.2f\n", s.LowestPointY.Mean, s.LowestPointY.Max)
}

// progressPrinter is a fall.FrameObserver printing the processed frame count
// every `every` frames, overwriting the same terminal line.
type progressPrinter struct {
	w     io.Writer
	every int
	total int
}

func (p *progressPrinter) OnFrame(_ context.Context, _ fall.Frame, report fall.FrameReport) error {
	if p.every <= 0 || report.Index%p.every != 0 {
		return nil
	}
	_, err := fmt.Fprintf(p.w, "Processed %d/%d frames\r", report.Index, p.total)
	return err
}
