package detections

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fall-detection/fall"
	"fall-detection/utils"
)

// ResultsFileName is the name of the results file inside an output directory.
const ResultsFileName = "detection_results.json"

// ResultsPath returns the results file location inside dir.
func ResultsPath(dir string) string {
	return filepath.Join(dir, ResultsFileName)
}

var mu sync.RWMutex

// SaveResults writes result as indented JSON to path, replacing any
// previous file.
func SaveResults(path string, result *fall.RunResult) error {
	if result == nil {
		return fmt.Errorf("no results to save")
	}

	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %w", err)
		}
	}

	record := *result
	if record.FallEvents == nil {
		record.FallEvents = []fall.FallEvent{}
	}

	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("error marshaling results: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing results file: %w", err)
	}
	return nil
}

// LoadResults reads a results file written by SaveResults.
func LoadResults(path string) (*fall.RunResult, error) {
	mu.RLock()
	defer mu.RUnlock()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("error reading results file: %w", err)
	}

	var result fall.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling results: %w", err)
	}
	if result.TotalFalls != len(result.FallEvents) {
		return nil, fmt.Errorf("corrupt results file: totalFalls %d but %d events", result.TotalFalls, len(result.FallEvents))
	}
	return &result, nil
}
