package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fall-detection/fall"
	"fall-detection/utils"
)

// Landmark recordings are JSON lines files. The first line is a
// RecordingHeader, every following line one RecordedFrame in stream order.

// RecordingHeader describes the stream a recording was taken from.
type RecordingHeader struct {
	FPS        int    `json:"fps"`
	FrameCount int    `json:"frameCount"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Source     string `json:"source,omitempty"`
}

// RecordedFrame is the pose result for one frame.
type RecordedFrame struct {
	Frame     int             `json:"frame"`
	Detected  bool            `json:"detected"`
	Landmarks []fall.Landmark `json:"landmarks,omitempty"`
}

// Recording replays a landmark recording as a fall.FrameSource. Frames carry
// their joints, so no pose estimation is needed.
type Recording struct {
	header  RecordingHeader
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenRecording opens path and reads its header.
func OpenRecording(path string) (*Recording, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open recording %s: %w: %w", path, fall.ErrSourceUnavailable, err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	r := &Recording{file: file, scanner: scanner}
	if !scanner.Scan() {
		file.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read recording header: %w: %w", fall.ErrSourceUnavailable, err)
		}
		return nil, fmt.Errorf("recording %s is empty: %w", path, fall.ErrSourceUnavailable)
	}
	r.line = 1
	if err := json.Unmarshal(scanner.Bytes(), &r.header); err != nil {
		file.Close()
		return nil, fmt.Errorf("invalid recording header: %w: %w", fall.ErrSourceUnavailable, err)
	}
	return r, nil
}

// Header returns the recording metadata.
func (r *Recording) Header() RecordingHeader { return r.header }

// FPS implements fall.FrameSource.
func (r *Recording) FPS() int { return r.header.FPS }

// FrameCount implements fall.FrameCounter.
func (r *Recording) FrameCount() int { return r.header.FrameCount }

// Next implements fall.FrameSource.
func (r *Recording) Next(ctx context.Context) (fall.Frame, error) {
	if err := ctx.Err(); err != nil {
		return fall.Frame{}, err
	}

	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec RecordedFrame
		if err := json.Unmarshal(line, &rec); err != nil {
			return fall.Frame{}, fmt.Errorf("invalid frame on line %d: %w", r.line, err)
		}

		frame := fall.Frame{
			Index:  rec.Frame,
			Width:  r.header.Width,
			Height: r.header.Height,
		}
		if rec.Detected {
			frame.Joints = fall.JointSetFromLandmarks(rec.Landmarks)
		}
		return frame, nil
	}

	if err := r.scanner.Err(); err != nil {
		return fall.Frame{}, fmt.Errorf("failed to read recording: %w", err)
	}
	return fall.Frame{}, io.EOF
}

// Close implements fall.FrameSource.
func (r *Recording) Close() error {
	return r.file.Close()
}

// Attached is the fall.PoseSource for frames that already carry their joints.
type Attached struct{}

// Detect returns the joints attached to the frame.
func (Attached) Detect(_ context.Context, frame fall.Frame) (fall.JointSet, error) {
	return frame.Joints, nil
}

// RecordingWriter is a fall.FrameObserver that records the detected joints
// of every frame, producing a file OpenRecording can replay.
type RecordingWriter struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewRecordingWriter creates path and writes the header.
func NewRecordingWriter(path string, header RecordingHeader) (*RecordingWriter, error) {
	if err := utils.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}

	buf := bufio.NewWriter(file)
	w := &RecordingWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}
	if err := w.enc.Encode(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write recording header: %w", err)
	}
	return w, nil
}

// OnFrame implements fall.FrameObserver.
func (w *RecordingWriter) OnFrame(_ context.Context, _ fall.Frame, report fall.FrameReport) error {
	rec := RecordedFrame{
		Frame:     report.Index,
		Detected:  report.Joints != nil,
		Landmarks: fall.LandmarksFromJointSet(report.Joints),
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", report.Index, err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *RecordingWriter) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	return errors.Join(flushErr, closeErr)
}

// WriteRecording writes a complete recording in one call.
func WriteRecording(path string, header RecordingHeader, frames []fall.JointSet) error {
	if header.FrameCount == 0 {
		header.FrameCount = len(frames)
	}
	w, err := NewRecordingWriter(path, header)
	if err != nil {
		return err
	}
	for i, joints := range frames {
		report := fall.FrameReport{Index: i + 1, Joints: joints}
		if err := w.OnFrame(context.Background(), fall.Frame{}, report); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
