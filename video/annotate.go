package video

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sort"

	"fall-detection/fall"
	"fall-detection/utils"

	"gocv.io/x/gocv"
)

var (
	metricColor   = color.RGBA{0, 255, 0, 0}
	alarmColor    = color.RGBA{255, 0, 0, 0}
	boneColor     = color.RGBA{255, 255, 255, 0}
	landmarkColor = color.RGBA{255, 0, 0, 0}
)

// connections are the skeleton bones drawn between known joints, following
// the MediaPipe pose topology.
var connections = [][2]fall.JointName{
	{fall.LeftShoulder, fall.RightShoulder},
	{fall.LeftShoulder, fall.LeftElbow},
	{fall.LeftElbow, fall.LeftWrist},
	{fall.RightShoulder, fall.RightElbow},
	{fall.RightElbow, fall.RightWrist},
	{fall.LeftShoulder, fall.LeftHip},
	{fall.RightShoulder, fall.RightHip},
	{fall.LeftHip, fall.RightHip},
	{fall.LeftHip, fall.LeftKnee},
	{fall.LeftKnee, fall.LeftAnkle},
	{fall.RightHip, fall.RightKnee},
	{fall.RightKnee, fall.RightAnkle},
}

type segment struct {
	From, To image.Point
}

// Annotator is a fall.FrameObserver that draws the per-frame features and
// status onto each frame and writes the result to an mp4 file.
type Annotator struct {
	writer *gocv.VideoWriter
}

// NewAnnotator creates the output video at path.
func NewAnnotator(path string, fps, width, height int) (*Annotator, error) {
	if err := utils.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if fps <= 0 {
		fps = 30
	}

	writer, err := gocv.VideoWriterFile(path, "mp4v", float64(fps), width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create video writer %s: %w", path, err)
	}
	return &Annotator{writer: writer}, nil
}

// OnFrame implements fall.FrameObserver.
func (a *Annotator) OnFrame(_ context.Context, frame fall.Frame, report fall.FrameReport) error {
	if len(frame.Data) == 0 {
		return nil
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("failed to decode frame %d: %w", frame.Index, err)
	}
	defer img.Close()

	for _, bone := range skeletonSegments(report.Joints, img.Cols(), img.Rows()) {
		gocv.Line(&img, bone.From, bone.To, boneColor, 2)
	}
	for _, p := range landmarkPoints(report.Joints, img.Cols(), img.Rows()) {
		gocv.Circle(&img, p, 4, landmarkColor, -1)
	}

	for i, line := range overlayLines(report) {
		gocv.PutText(&img, line, image.Pt(10, 30*(i+1)), gocv.FontHersheySimplex, 0.7, metricColor, 2)
	}

	status := report.Classification.Status
	statusColor := metricColor
	if status == fall.StatusFallDetected {
		statusColor = alarmColor
	}
	gocv.PutText(&img, status.Label(), image.Pt(10, img.Rows()-20), gocv.FontHersheySimplex, 1.2, statusColor, 3)

	if err := a.writer.Write(img); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", frame.Index, err)
	}
	return nil
}

// Close finalises the output video.
func (a *Annotator) Close() error {
	return a.writer.Close()
}

// overlayLines returns the metric lines drawn in the top-left corner. They
// are shown whenever a person was found, with zero features when the pose
// was incomplete.
func overlayLines(report fall.FrameReport) []string {
	if !report.PersonDetected {
		return nil
	}
	return []string{
		fmt.Sprintf("Ratio: %.2f", report.Features.AspectRatio),
		fmt.Sprintf("Angle: %.1f", report.Features.BodyAngleDegrees),
		fmt.Sprintf("Confidence: %.1f%%", report.Classification.Confidence),
	}
}

// toPixel scales a normalised point to the frame.
func toPixel(p fall.Point, width, height int) image.Point {
	return image.Pt(int(p.X*float64(width)), int(p.Y*float64(height)))
}

// skeletonSegments returns the bones whose two joints are both present.
func skeletonSegments(joints fall.JointSet, width, height int) []segment {
	var out []segment
	for _, c := range connections {
		from, ok := joints[c[0]]
		if !ok {
			continue
		}
		to, ok := joints[c[1]]
		if !ok {
			continue
		}
		out = append(out, segment{From: toPixel(from, width, height), To: toPixel(to, width, height)})
	}
	return out
}

// landmarkPoints returns the pixel position of every joint in a stable order.
func landmarkPoints(joints fall.JointSet, width, height int) []image.Point {
	names := make([]string, 0, len(joints))
	for name := range joints {
		names = append(names, string(name))
	}
	sort.Strings(names)

	points := make([]image.Point, 0, len(names))
	for _, name := range names {
		points = append(points, toPixel(joints[fall.JointName(name)], width, height))
	}
	return points
}
