package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fall-detection/fall"
	"fall-detection/pose"
)

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	DataDir    string
	ConfigPath string
	ReportPath string
	Verbose    bool
}

// SampleResult is the outcome of one labelled recording.
type SampleResult struct {
	Filename   string  `json:"filename"`
	Fall       bool    `json:"fall"`
	Detected   bool    `json:"detected"`
	Falls      int     `json:"falls"`
	FirstFrame int     `json:"firstFrame,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// EvaluationReport contains the evaluation results
type EvaluationReport struct {
	Timestamp      time.Time      `json:"timestamp"`
	Config         fall.Config    `json:"config"`
	TruePositives  int            `json:"truePositives"`
	FalseNegatives int            `json:"falseNegatives"`
	FalsePositives int            `json:"falsePositives"`
	TrueNegatives  int            `json:"trueNegatives"`
	Precision      float64        `json:"precision"`
	Recall         float64        `json:"recall"`
	FalsePosRate   float64        `json:"falsePositiveRate"`
	Samples        []SampleResult `json:"samples"`
	ProcessingTime time.Duration  `json:"processingTime"`
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Fall Detection Evaluation ===")
	log.Printf("Data: %s\n", config.DataDir)

	cfg, err := fall.LoadConfig(config.ConfigPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load config: %v", err)
	}
	log.Printf("Thresholds: ratio>%.2f lowY>%.2f angle>%.0f confirm=%d decay=%d\n",
		cfg.RatioThreshold, cfg.LowYThreshold, cfg.AngleThreshold, cfg.ConfirmFrames, cfg.DecayStep)
	log.Println()

	report := EvaluationReport{Timestamp: time.Now(), Config: cfg}
	for _, label := range []string{"fall", "no_fall"} {
		files, err := collectRecordings(filepath.Join(config.DataDir, label))
		if err != nil {
			log.Printf("WARNING: Failed to read %s recordings: %v\n", label, err)
			continue
		}
		if len(files) == 0 {
			log.Printf("WARNING: No recordings in %s\n", filepath.Join(config.DataDir, label))
		}
		for _, path := range files {
			sample := evaluateRecording(cfg, path, label == "fall")
			if config.Verbose {
				log.Printf("  %-30s fall=%-5v detected=%-5v falls=%d\n", sample.Filename, sample.Fall, sample.Detected, sample.Falls)
			}
			report.add(sample)
		}
	}
	report.finish()

	printEvaluationReport(report)

	if config.ReportPath != "" {
		if err := saveReport(report, config.ReportPath); err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("\nReport saved to: %s\n", config.ReportPath)
		}
	}
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}

	flag.StringVar(&config.DataDir, "data-dir", "recordings",
		"Directory with fall/ and no_fall/ subdirectories of landmark recordings")
	flag.StringVar(&config.ConfigPath, "config", "",
		"Optional YAML file with classifier thresholds")
	flag.StringVar(&config.ReportPath, "report", "evaluation_report.json",
		"Path to save evaluation report (empty to skip)")
	flag.BoolVar(&config.Verbose, "verbose", false,
		"Print every sample")

	flag.Parse()

	return config
}

func collectRecordings(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".jsonl" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}

func evaluateRecording(cfg fall.Config, path string, isFall bool) SampleResult {
	sample := SampleResult{Filename: filepath.Base(path), Fall: isFall}

	rec, err := pose.OpenRecording(path)
	if err != nil {
		sample.Error = err.Error()
		return sample
	}
	defer rec.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, err := fall.NewDetector(pose.Attached{}, cfg,
		fall.WithLogger(quiet),
		fall.WithProgressInterval(0),
	).Run(context.Background(), rec)
	if err != nil {
		sample.Error = err.Error()
		return sample
	}

	sample.Falls = result.TotalFalls
	sample.Detected = result.TotalFalls > 0
	if first, ok := result.FirstEvent(); ok {
		sample.FirstFrame = first.FrameIndex
		sample.Confidence = first.ConfidencePercent
	}
	return sample
}

func (r *EvaluationReport) add(sample SampleResult) {
	r.Samples = append(r.Samples, sample)
	if sample.Error != "" {
		return
	}
	switch {
	case sample.Fall && sample.Detected:
		r.TruePositives++
	case sample.Fall:
		r.FalseNegatives++
	case sample.Detected:
		r.FalsePositives++
	default:
		r.TrueNegatives++
	}
}

func (r *EvaluationReport) finish() {
	r.Precision = ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
	r.Recall = ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
	r.FalsePosRate = ratio(r.FalsePositives, r.FalsePositives+r.TrueNegatives)
	r.ProcessingTime = time.Since(r.Timestamp)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func printEvaluationReport(report EvaluationReport) {
	log.Println()
	log.Println(strings.Repeat("=", 80))
	log.Println("EVALUATION RESULTS")
	log.Println(strings.Repeat("=", 80))
	log.Println()

	log.Printf("Detection Rate (recall): %.2f%% (%d/%d falls)\n",
		report.Recall, report.TruePositives, report.TruePositives+report.FalseNegatives)
	log.Printf("Precision: %.2f%%\n", report.Precision)
	log.Printf("False Positive Rate: %.2f%% (%d/%d non-fall recordings)\n",
		report.FalsePosRate, report.FalsePositives, report.FalsePositives+report.TrueNegatives)
	log.Printf("Processing Time: %.2f seconds\n", report.ProcessingTime.Seconds())
	log.Println()

	fmt.Printf("%-15s %8s %8s\n", "Actual \\ Pred", "fall", "no_fall")
	fmt.Printf("%-15s %8d %8d\n", "fall", report.TruePositives, report.FalseNegatives)
	fmt.Printf("%-15s %8d %8d\n", "no_fall", report.FalsePositives, report.TrueNegatives)
	log.Println()

	var failed []SampleResult
	for _, s := range report.Samples {
		if s.Error != "" || s.Fall != s.Detected {
			failed = append(failed, s)
		}
	}
	if len(failed) == 0 {
		log.Println("✓ All recordings classified correctly")
		return
	}
	log.Println("Misclassified recordings:")
	for _, s := range failed {
		if s.Error != "" {
			log.Printf("  ⚠ %s: %s\n", s.Filename, s.Error)
			continue
		}
		log.Printf("  ✗ %s: expected fall=%v, got %d fall(s)\n", s.Filename, s.Fall, s.Falls)
	}
}

func saveReport(report EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
