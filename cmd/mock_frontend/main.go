package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fall-detection/models"
)

type analyzeResult struct {
	RunID       string `json:"runId"`
	TotalFrames int    `json:"totalFrames"`
	FPS         int    `json:"fps"`
	TotalFalls  int    `json:"totalFalls"`
	FallEvents  []struct {
		Timestamp  float64 `json:"timestamp"`
		Frame      int     `json:"frame"`
		Confidence float64 `json:"confidence"`
	} `json:"fallEvents"`
}

func main() {
	dir := flag.String("dir", "recordings", "Directory containing landmark recordings to submit (ignored if -file or -video is set)")
	file := flag.String("file", "", "Single landmark recording to submit (overrides -dir)")
	video := flag.String("video", "", "Video path, as seen by the server, to analyze instead of recordings")
	endpoint := flag.String("url", "http://localhost:5000/api/video/analyze", "Analysis endpoint")
	delay := flag.Duration("delay", 2*time.Second, "Delay between requests when using -dir")
	flag.Parse()

	var requests []models.AnalyzeRequest
	if *video != "" {
		requests = append(requests, models.AnalyzeRequest{VideoPath: *video})
	} else {
		files, err := resolveFiles(*file, *dir)
		if err != nil {
			log.Fatalf("failed to resolve files: %v", err)
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				abs = f
			}
			requests = append(requests, models.AnalyzeRequest{RecordingPath: abs})
		}
	}
	if len(requests) == 0 {
		log.Fatalf("no recordings found (file=%s dir=%s)", *file, *dir)
	}

	fmt.Printf("Submitting %d request(s) to %s\n\n", len(requests), *endpoint)
	for idx, req := range requests {
		if err := submit(req, *endpoint); err != nil {
			log.Printf("request failed: %v\n", err)
		}

		if idx < len(requests)-1 && *delay > 0 {
			time.Sleep(*delay)
		}
	}
}

func resolveFiles(single, dir string) ([]string, error) {
	if single != "" {
		return []string{single}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".jsonl" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func submit(analyzeReq models.AnalyzeRequest, endpoint string) error {
	name := analyzeReq.VideoPath
	if name == "" {
		name = analyzeReq.RecordingPath
	}
	fmt.Printf("→ %s\n", filepath.Base(name))

	payload, err := json.Marshal(analyzeReq)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post analysis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result analyzeResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode analysis response: %w", err)
	}

	fmt.Printf("   run=%s frames=%d fps=%d falls=%d\n", result.RunID, result.TotalFrames, result.FPS, result.TotalFalls)
	for _, e := range result.FallEvents {
		fmt.Printf("   fall at frame %d (%.2fs) confidence %.1f%%\n", e.Frame, e.Timestamp, e.Confidence)
	}
	return nil
}
