package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fall-detection/alert"
	"fall-detection/db"
	"fall-detection/fall"
	"fall-detection/models"
	"fall-detection/pose"
	"fall-detection/utils"
	"fall-detection/video"

	"github.com/mdobak/go-xerrors"
)

var errInvalidRequest = errors.New("exactly one of videoPath or recordingPath is required")

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// analyzer wires sources, pose estimation, alerts and storage around a
// fall.Detector. It is shared by the CLI and the server.
type analyzer struct {
	cfg    fall.Config
	alerts *alert.Dispatcher
	store  db.DBClient
	pose   func(ctx context.Context) (fall.PoseSource, io.Closer, error)
	logger *slog.Logger
}

type analysisOptions struct {
	annotatePath string
	recordPath   string
	onStart      func(total int)
	observers    []fall.FrameObserver
	listeners    []fall.EventListener
}

// analysis is a finished detection run whose alerts have not been sent yet.
type analysis struct {
	Source     string
	SourceType string
	Result     *fall.RunResult
	alerts     *alert.RunAlerts
}

func newAnalyzer(cfg fall.Config, alerts *alert.Dispatcher, store db.DBClient) *analyzer {
	return &analyzer{
		cfg:    cfg,
		alerts: alerts,
		store:  store,
		pose:   poseSourceFromEnv,
		logger: utils.GetLogger(),
	}
}

// poseSourceFromEnv selects the pose backend configured by POSE_BACKEND.
func poseSourceFromEnv(ctx context.Context) (fall.PoseSource, io.Closer, error) {
	switch backend := utils.GetEnv("POSE_BACKEND", "http"); backend {
	case "http":
		client := pose.NewHTTPClient(utils.GetEnv("POSE_SERVICE_URL", "http://localhost:5003"))
		if err := client.HealthCheck(ctx); err != nil {
			return nil, nil, err
		}
		return client, closerFunc(func() error { return nil }), nil
	case "worker":
		parts := strings.Fields(utils.GetEnv("POSE_WORKER_CMD"))
		if len(parts) == 0 {
			return nil, nil, fmt.Errorf("POSE_WORKER_CMD is required for the worker backend")
		}
		worker, err := pose.StartWorker(ctx, parts[0], parts[1:]...)
		if err != nil {
			return nil, nil, err
		}
		return worker, worker, nil
	default:
		return nil, nil, fmt.Errorf("unknown pose backend %q", backend)
	}
}

// detect runs the detector over the requested source. On cancellation the
// partial analysis is returned together with the context error.
func (a *analyzer) detect(ctx context.Context, req models.AnalyzeRequest, opts analysisOptions) (*analysis, error) {
	if (req.VideoPath == "") == (req.RecordingPath == "") {
		return nil, errInvalidRequest
	}

	var (
		src        fall.FrameSource
		poseSource fall.PoseSource
		closers    []io.Closer
		an         = &analysis{}
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				a.logger.WarnContext(ctx, "failed to release resource", slog.Any("error", xerrors.New(err)))
			}
		}
	}()

	detectorOpts := []fall.DetectorOption{}

	if req.RecordingPath != "" {
		rec, err := pose.OpenRecording(req.RecordingPath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, rec)
		src, poseSource = rec, pose.Attached{}
		an.Source, an.SourceType = req.RecordingPath, models.SourceRecording
	} else {
		capture, err := video.Open(req.VideoPath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, capture)
		src = capture
		an.Source, an.SourceType = req.VideoPath, models.SourceVideo

		ps, closer, err := a.pose(ctx)
		if err != nil {
			return nil, fmt.Errorf("pose backend unavailable: %w", err)
		}
		closers = append(closers, closer)
		poseSource = ps

		width, height := capture.Size()
		if opts.annotatePath != "" {
			annotator, err := video.NewAnnotator(opts.annotatePath, capture.FPS(), width, height)
			if err != nil {
				return nil, err
			}
			closers = append(closers, annotator)
			detectorOpts = append(detectorOpts, fall.WithObserver(annotator))
		}
		if opts.recordPath != "" {
			writer, err := pose.NewRecordingWriter(opts.recordPath, pose.RecordingHeader{
				FPS:        capture.FPS(),
				FrameCount: capture.FrameCount(),
				Width:      width,
				Height:     height,
				Source:     req.VideoPath,
			})
			if err != nil {
				return nil, err
			}
			closers = append(closers, writer)
			detectorOpts = append(detectorOpts, fall.WithObserver(writer))
		}
	}

	if opts.onStart != nil {
		total := 0
		if counter, ok := src.(fall.FrameCounter); ok {
			total = counter.FrameCount()
		}
		opts.onStart(total)
	}

	an.alerts = a.alerts.ForRun()
	detectorOpts = append(detectorOpts, fall.WithEventListener(an.alerts.OnEvent))
	for _, o := range opts.observers {
		detectorOpts = append(detectorOpts, fall.WithObserver(o))
	}
	for _, l := range opts.listeners {
		detectorOpts = append(detectorOpts, fall.WithEventListener(l))
	}

	result, err := fall.NewDetector(poseSource, a.cfg, detectorOpts...).Run(ctx, src)
	if result == nil {
		return nil, err
	}
	an.Result = result
	return an, err
}

// complete sends the after-run alerts and stores the run when a database is
// configured. Storage failures are logged only.
func (a *analyzer) complete(ctx context.Context, an *analysis) *models.Run {
	alertSent := an.alerts.Complete(ctx, an.Result)

	run := models.NewRun(utils.GenerateRunID(), an.Source, an.SourceType, an.Result)
	run.AlertSent = alertSent

	if a.store != nil {
		if err := a.store.StoreRun(run); err != nil {
			a.logger.ErrorContext(ctx, "failed to store run",
				slog.String("runID", run.ID),
				slog.Any("error", xerrors.New(err)),
			)
		}
	}
	return run
}
