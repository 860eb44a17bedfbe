package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"fall-detection/fall"
	"fall-detection/models"
	"fall-detection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

// emitter is the part of socketio.Conn the handlers use.
type emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

type socketController struct {
	analyzer    *analyzer
	statusEvery int
}

func newSocketController(a *analyzer) *socketController {
	every := int(utils.GetEnvFloat("FRAME_STATUS_INTERVAL", 15))
	if every <= 0 {
		every = 15
	}
	return &socketController{analyzer: a, statusEvery: every}
}

// frameStatusEmitter streams throttled progress to one socket.
type frameStatusEmitter struct {
	socket emitter
	every  int
	total  int
}

func (e *frameStatusEmitter) OnFrame(_ context.Context, _ fall.Frame, report fall.FrameReport) error {
	if report.Index%e.every != 0 && report.Classification.Event == nil {
		return nil
	}
	e.socket.Emit("frameStatus", models.FrameStatus{
		Frame:      report.Index,
		Total:      e.total,
		Status:     report.Classification.Status.Label(),
		Confidence: report.Classification.Confidence,
	})
	return nil
}

func (c *socketController) handleAnalyzeVideo(socket socketio.Conn, payload string) {
	c.analyze(context.Background(), socket, payload)
}

func (c *socketController) analyze(ctx context.Context, socket emitter, payload string) {
	logger := utils.GetLogger()

	if payload == "" {
		logger.ErrorContext(ctx, "no data received in analyzeVideo event")
		socket.Emit("analysisError", map[string]string{"message": "no request received"})
		return
	}

	var req models.AnalyzeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse analyze payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid request payload"})
		return
	}

	progress := &frameStatusEmitter{socket: socket, every: c.statusEvery}
	opts := analysisOptions{
		onStart: func(total int) {
			progress.total = total
		},
		observers: []fall.FrameObserver{progress},
		listeners: []fall.EventListener{
			func(_ context.Context, event fall.FallEvent) {
				socket.Emit("fallDetected", event)
			},
		},
	}

	logger.InfoContext(ctx, "starting socket analysis",
		slog.String("socketID", socket.ID()),
		slog.String("videoPath", req.VideoPath),
		slog.String("recordingPath", req.RecordingPath),
	)

	an, err := c.analyzer.detect(ctx, req, opts)
	if err != nil {
		_, message := analysisErrorStatus(err)
		logger.ErrorContext(ctx, "socket analysis failed",
			slog.String("socketID", socket.ID()),
			slog.Any("error", xerrors.New(err)),
		)
		socket.Emit("analysisError", map[string]string{"message": message})
		return
	}

	run := c.analyzer.complete(ctx, an)
	log.Printf("[analyzeVideo] socket %s: %d frames, %d falls, run %s\n",
		socket.ID(), an.Result.TotalFrames, an.Result.TotalFalls, run.ID)

	socket.Emit("runResult", models.AnalyzeResponse{
		RunID:     run.ID,
		RunResult: an.Result,
		Summary:   an.Result.Summary,
	})
}
