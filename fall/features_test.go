package fall

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestExtractFeaturesStanding(t *testing.T) {
	t.Parallel()

	f, ok := ExtractFeatures(standingJoints())
	if !ok {
		t.Fatalf("expected conclusive features for a standing pose")
	}
	if math.Abs(f.AspectRatio-0.1/0.6) > epsilon {
		t.Errorf("expected aspect ratio %.4f, got %.4f", 0.1/0.6, f.AspectRatio)
	}
	if math.Abs(f.BodyAngleDegrees) > epsilon {
		t.Errorf("expected upright torso angle 0, got %.4f", f.BodyAngleDegrees)
	}
	if math.Abs(f.LowestPointY-0.9) > epsilon {
		t.Errorf("expected lowest point 0.9, got %.4f", f.LowestPointY)
	}
}

func TestExtractFeaturesLying(t *testing.T) {
	t.Parallel()

	f, ok := ExtractFeatures(lyingJoints())
	if !ok {
		t.Fatalf("expected conclusive features for a lying pose")
	}
	if f.AspectRatio <= 1 {
		t.Errorf("expected a wide silhouette, got ratio %.3f", f.AspectRatio)
	}
	if f.BodyAngleDegrees <= 80 {
		t.Errorf("expected a nearly horizontal torso, got %.2f degrees", f.BodyAngleDegrees)
	}
	if !NewClassifier(DefaultConfig(), 30).Indicates(f) {
		t.Errorf("lying pose should indicate a fall: %+v", f)
	}
}

func TestBodyAngle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		shoulder, hip Point
		want          float64
	}{
		{"vertical", Point{0.5, 0.2}, Point{0.5, 0.6}, 0},
		{"horizontal", Point{0.2, 0.5}, Point{0.6, 0.5}, 90},
		{"horizontal mirrored", Point{0.6, 0.5}, Point{0.2, 0.5}, 90},
		{"diagonal", Point{0.2, 0.2}, Point{0.4, 0.4}, 45},
		{"diagonal mirrored", Point{0.4, 0.2}, Point{0.2, 0.4}, 45},
		{"upside down", Point{0.5, 0.8}, Point{0.5, 0.4}, 0},
		{"degenerate", Point{0.5, 0.5}, Point{0.5, 0.5}, 0},
	}
	for _, tc := range cases {
		got := bodyAngle(tc.shoulder, tc.hip)
		if math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("%s: expected %.2f, got %.6f", tc.name, tc.want, got)
		}
		if got < 0 || got > 90 {
			t.Errorf("%s: angle %.2f outside [0,90]", tc.name, got)
		}
	}
}

func TestExtractFeaturesInconclusive(t *testing.T) {
	t.Parallel()

	missing := standingJoints()
	delete(missing, RightAnkle)

	nan := standingJoints()
	nan[LeftHip] = Point{X: math.NaN(), Y: 0.5}

	inf := standingJoints()
	inf[RightShoulder] = Point{X: 0.5, Y: math.Inf(1)}

	cases := map[string]JointSet{
		"nil":           nil,
		"empty":         {},
		"missing ankle": missing,
		"nan":           nan,
		"inf":           inf,
	}
	for name, joints := range cases {
		f, ok := ExtractFeatures(joints)
		if ok {
			t.Errorf("%s: expected inconclusive frame", name)
		}
		if !f.IsZero() {
			t.Errorf("%s: expected zero feature vector, got %+v", name, f)
		}
	}
}

func TestExtractFeaturesZeroVerticalExtent(t *testing.T) {
	t.Parallel()

	joints := JointSet{
		LeftShoulder:  {X: 0.2, Y: 0.8},
		RightShoulder: {X: 0.3, Y: 0.8},
		LeftHip:       {X: 0.5, Y: 0.8},
		RightHip:      {X: 0.6, Y: 0.8},
		LeftAnkle:     {X: 0.8, Y: 0.8},
		RightAnkle:    {X: 0.9, Y: 0.8},
	}
	f, ok := ExtractFeatures(joints)
	if !ok {
		t.Fatalf("a flat pose is still conclusive")
	}
	if f.AspectRatio != 0 {
		t.Errorf("expected aspect ratio 0 when shoulders and ankles are level, got %f", f.AspectRatio)
	}
	if math.Abs(f.BodyAngleDegrees-90) > epsilon {
		t.Errorf("expected horizontal torso, got %f", f.BodyAngleDegrees)
	}
}

func TestExtractFeaturesClampsLowestPoint(t *testing.T) {
	t.Parallel()

	joints := standingJoints()
	joints[LeftAnkle] = Point{X: 0.47, Y: 1.2}
	joints[RightAnkle] = Point{X: 0.53, Y: 1.1}

	f, ok := ExtractFeatures(joints)
	if !ok {
		t.Fatalf("expected conclusive features")
	}
	if f.LowestPointY != 1 {
		t.Errorf("expected lowest point clamped to 1, got %f", f.LowestPointY)
	}
}

func TestJointSetFromLandmarks(t *testing.T) {
	t.Parallel()

	if JointSetFromLandmarks(nil) != nil {
		t.Fatalf("expected nil joint set for no landmarks")
	}

	landmarks := LandmarksFromJointSet(lyingJoints())
	if len(landmarks) != MediaPipeLandmarkCount {
		t.Fatalf("expected %d landmarks, got %d", MediaPipeLandmarkCount, len(landmarks))
	}

	joints := JointSetFromLandmarks(landmarks)
	for _, name := range RequiredJoints {
		if joints[name] != lyingJoints()[name] {
			t.Errorf("joint %s did not survive the landmark mapping: %+v", name, joints[name])
		}
	}
}
