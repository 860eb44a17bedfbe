package fall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fall-detection/utils"

	"github.com/mdobak/go-xerrors"
)

// ErrSourceUnavailable is returned when a frame source cannot be opened or
// yields no readable frame at all.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// FrameSource yields frames in stream order. Next returns io.EOF once the
// stream is exhausted.
type FrameSource interface {
	FPS() int
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// FrameCounter is implemented by sources that know their length up front.
type FrameCounter interface {
	FrameCount() int
}

// PoseSource finds the body joints in a frame. A nil JointSet with a nil
// error means no person was detected.
type PoseSource interface {
	Detect(ctx context.Context, frame Frame) (JointSet, error)
}

// PoseSourceFunc adapts a function to PoseSource.
type PoseSourceFunc func(ctx context.Context, frame Frame) (JointSet, error)

// Detect implements PoseSource.
func (f PoseSourceFunc) Detect(ctx context.Context, frame Frame) (JointSet, error) {
	return f(ctx, frame)
}

// FrameObserver receives every frame after classification, e.g. to annotate
// and write it. Observers cannot influence classification.
type FrameObserver interface {
	OnFrame(ctx context.Context, frame Frame, report FrameReport) error
}

// EventListener is called synchronously when a fall is confirmed.
type EventListener func(ctx context.Context, event FallEvent)

// Detector drives frames through pose detection, feature extraction and
// classification.
type Detector struct {
	pose          PoseSource
	cfg           Config
	observers     []FrameObserver
	listeners     []EventListener
	clock         func() time.Time
	logger        *slog.Logger
	progressEvery int
}

// DetectorOption customises a Detector.
type DetectorOption func(*Detector)

// WithObserver adds a per-frame observer.
func WithObserver(o FrameObserver) DetectorOption {
	return func(d *Detector) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// WithEventListener adds a listener for confirmed falls.
func WithEventListener(l EventListener) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.listeners = append(d.listeners, l)
		}
	}
}

// WithEventClock sets the clock used to stamp fall events.
func WithEventClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.clock = now }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithProgressInterval sets how often (in frames) progress is logged. Zero
// disables progress logging.
func WithProgressInterval(frames int) DetectorOption {
	return func(d *Detector) { d.progressEvery = frames }
}

// NewDetector creates a Detector using pose to locate joints.
func NewDetector(pose PoseSource, cfg Config, opts ...DetectorOption) *Detector {
	d := &Detector{
		pose:          pose,
		cfg:           cfg,
		logger:        utils.GetLogger(),
		progressEvery: 30,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes src to the end and returns the aggregated result. Every run
// uses a fresh Classifier. When ctx is cancelled the frames processed so far
// are returned together with ctx.Err().
func (d *Detector) Run(ctx context.Context, src FrameSource) (*RunResult, error) {
	if src == nil {
		return nil, fmt.Errorf("no frame source: %w", ErrSourceUnavailable)
	}

	fps := src.FPS()
	expected := 0
	if counter, ok := src.(FrameCounter); ok {
		expected = counter.FrameCount()
	}
	if fps <= 0 {
		d.logger.WarnContext(ctx, "source reports no frame rate, event timestamps will be zero")
	}

	var clockOpts []ClassifierOption
	if d.clock != nil {
		clockOpts = append(clockOpts, WithClock(d.clock))
	}
	classifier := NewClassifier(d.cfg, fps, clockOpts...)
	summary := newSummaryBuilder()

	frameIndex := 0
	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if frameIndex == 0 {
				return nil, fmt.Errorf("failed to read first frame: %w: %w", ErrSourceUnavailable, err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				runErr = ctxErr
				break
			}
			d.logger.WarnContext(ctx, "frame read failed, ending stream early",
				slog.Int("frame", frameIndex+1),
				slog.Any("error", xerrors.New(err)),
			)
			break
		}

		frameIndex++
		frame.Index = frameIndex
		report := d.processFrame(ctx, classifier, frame)
		summary.add(report)

		if event := report.Classification.Event; event != nil {
			d.logger.InfoContext(ctx, "fall detected",
				slog.Int("frame", event.FrameIndex),
				slog.Float64("timestamp", event.TimestampSeconds),
				slog.Float64("confidence", event.ConfidencePercent),
			)
			for _, listener := range d.listeners {
				listener(ctx, *event)
			}
		}

		for _, observer := range d.observers {
			if err := observer.OnFrame(ctx, frame, report); err != nil {
				d.logger.WarnContext(ctx, "frame observer failed",
					slog.Int("frame", frameIndex),
					slog.Any("error", xerrors.New(err)),
				)
			}
		}

		if d.progressEvery > 0 && frameIndex%d.progressEvery == 0 {
			d.logger.DebugContext(ctx, "processing progress",
				slog.Int("processed", frameIndex),
				slog.Int("total", expected),
			)
		}
	}

	events := classifier.Events()
	result := &RunResult{
		TotalFrames: frameIndex,
		FPS:         fps,
		FallEvents:  events,
		TotalFalls:  len(events),
		Summary:     summary.build(events),
	}

	d.logger.InfoContext(ctx, "processing complete",
		slog.Int("frames", result.TotalFrames),
		slog.Int("falls", result.TotalFalls),
	)
	return result, runErr
}

func (d *Detector) processFrame(ctx context.Context, classifier *Classifier, frame Frame) FrameReport {
	joints := d.detectPose(ctx, frame)
	features, ok := ExtractFeatures(joints)

	return FrameReport{
		Index:          frame.Index,
		PersonDetected: joints != nil,
		Inconclusive:   !ok,
		Features:       features,
		Classification: classifier.Classify(frame.Index, features),
		Joints:         joints,
	}
}

// detectPose never fails: pose errors and panics make the frame inconclusive.
func (d *Detector) detectPose(ctx context.Context, frame Frame) (joints JointSet) {
	if d.pose == nil {
		return frame.Joints
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "pose source panicked",
				slog.Int("frame", frame.Index),
				slog.Any("error", xerrors.New(fmt.Sprintf("panic: %v", r))),
			)
			joints = nil
		}
	}()

	joints, err := d.pose.Detect(ctx, frame)
	if err != nil {
		d.logger.WarnContext(ctx, "pose detection failed, frame treated as inconclusive",
			slog.Int("frame", frame.Index),
			slog.Any("error", xerrors.New(err)),
		)
		return nil
	}
	return joints
}
