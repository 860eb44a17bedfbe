package video

import (
	"image"
	"testing"

	"fall-detection/fall"
)

func TestOverlayLines(t *testing.T) {
	t.Parallel()

	report := fall.FrameReport{
		PersonDetected: true,
		Features:       fall.FeatureVector{AspectRatio: 1.234, BodyAngleDegrees: 72.34, LowestPointY: 0.8},
		Classification: fall.Classification{Confidence: 60},
	}

	lines := overlayLines(report)
	want := []string{"Ratio: 1.23", "Angle: 72.3", "Confidence: 60.0%"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}

	if got := overlayLines(fall.FrameReport{}); got != nil {
		t.Errorf("expected no overlay without a person, got %v", got)
	}

	incomplete := overlayLines(fall.FrameReport{PersonDetected: true, Inconclusive: true})
	wantZero := []string{"Ratio: 0.00", "Angle: 0.0", "Confidence: 0.0%"}
	if len(incomplete) != len(wantZero) {
		t.Fatalf("expected zero metrics for an incomplete pose, got %v", incomplete)
	}
	for i := range wantZero {
		if incomplete[i] != wantZero[i] {
			t.Errorf("line %d: expected %q, got %q", i, wantZero[i], incomplete[i])
		}
	}
}

func TestSkeletonSegments(t *testing.T) {
	t.Parallel()

	joints := fall.JointSet{
		fall.LeftShoulder:  {X: 0.25, Y: 0.25},
		fall.RightShoulder: {X: 0.75, Y: 0.25},
		fall.LeftHip:       {X: 0.25, Y: 0.5},
		fall.LeftKnee:      {X: 0.25, Y: 0.75},
	}

	got := skeletonSegments(joints, 640, 480)
	want := []segment{
		{From: image.Pt(160, 120), To: image.Pt(480, 120)}, // shoulders
		{From: image.Pt(160, 120), To: image.Pt(160, 240)}, // left torso
		{From: image.Pt(160, 240), To: image.Pt(160, 360)}, // left thigh
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if segs := skeletonSegments(nil, 640, 480); len(segs) != 0 {
		t.Errorf("expected no segments without joints, got %v", segs)
	}

	points := landmarkPoints(joints, 640, 480)
	if len(points) != len(joints) {
		t.Fatalf("expected %d landmark points, got %d", len(joints), len(points))
	}
	// Sorted by joint name: left_hip, left_knee, left_shoulder, right_shoulder.
	if points[0] != image.Pt(160, 240) || points[3] != image.Pt(480, 120) {
		t.Errorf("unexpected landmark points %v", points)
	}
}
