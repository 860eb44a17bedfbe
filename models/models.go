package models

import (
	"time"

	"fall-detection/fall"
)

// Source types of an analysed run.
const (
	SourceVideo     = "video"
	SourceRecording = "recording"
)

// Run is a stored analysis run.
type Run struct {
	ID          string           `json:"id" bson:"_id"`
	CreatedAt   time.Time        `json:"createdAt" bson:"created_at"`
	Source      string           `json:"source" bson:"source"`
	SourceType  string           `json:"sourceType" bson:"source_type"`
	TotalFrames int              `json:"totalFrames" bson:"total_frames"`
	FPS         int              `json:"fps" bson:"fps"`
	TotalFalls  int              `json:"totalFalls" bson:"total_falls"`
	FallEvents  []fall.FallEvent `json:"fallEvents" bson:"fall_events"`
	Summary     fall.RunSummary  `json:"summary" bson:"summary"`
	AlertSent   bool             `json:"alertSent" bson:"alert_sent"`
}

// NewRun wraps result into a Run with a fresh ID.
func NewRun(id, source, sourceType string, result *fall.RunResult) *Run {
	run := &Run{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		Source:     source,
		SourceType: sourceType,
		FallEvents: []fall.FallEvent{},
	}
	if result != nil {
		run.TotalFrames = result.TotalFrames
		run.FPS = result.FPS
		run.TotalFalls = result.TotalFalls
		run.FallEvents = append(run.FallEvents, result.FallEvents...)
		run.Summary = result.Summary
	}
	return run
}

// Result converts the run back into the results record.
func (r *Run) Result() *fall.RunResult {
	events := make([]fall.FallEvent, len(r.FallEvents))
	copy(events, r.FallEvents)
	return &fall.RunResult{
		TotalFrames: r.TotalFrames,
		FPS:         r.FPS,
		FallEvents:  events,
		TotalFalls:  r.TotalFalls,
		Summary:     r.Summary,
	}
}

// AnalyzeRequest is the body of an analysis request. Exactly one of the
// paths must be set.
type AnalyzeRequest struct {
	VideoPath     string `json:"videoPath,omitempty"`
	RecordingPath string `json:"recordingPath,omitempty"`
}

// AnalyzeResponse is returned once an analysis finished.
type AnalyzeResponse struct {
	RunID string `json:"runId"`
	*fall.RunResult
	Summary fall.RunSummary `json:"summary"`
}

// FrameStatus is streamed to socket clients while a run is in progress.
type FrameStatus struct {
	Frame      int     `json:"frame"`
	Total      int     `json:"total"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}
