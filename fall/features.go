package fall

// Posture Feature Extraction
//
// Three scalar descriptors are computed from the joints of one frame:
//
//   - Aspect Ratio: horizontal spread of shoulders and hips divided by the
//     vertical shoulder-to-ankle extent. A standing person is tall and narrow
//     (low ratio); a person lying down is wide and flat (high ratio).
//   - Body Angle: tilt of the shoulder->hip segment away from vertical, in
//     degrees. 0 is an upright torso, 90 a horizontal one.
//   - Lowest Point: vertical position of the ankle midpoint. Values near 1
//     are close to the bottom of the frame.
//
// Frames where a required joint is missing, or where a coordinate is not a
// finite number, produce the all-zero vector and are reported as
// inconclusive. The classifier treats them as ordinary non-fall frames.

import "math"

// ExtractFeatures derives the posture descriptors for one frame. The boolean
// result is false when the frame is inconclusive, in which case the zero
// FeatureVector is returned.
func ExtractFeatures(joints JointSet) (FeatureVector, bool) {
	if len(joints) == 0 {
		return FeatureVector{}, false
	}
	for _, name := range RequiredJoints {
		p, ok := joints[name]
		if !ok || !finite(p.X) || !finite(p.Y) {
			return FeatureVector{}, false
		}
	}

	leftShoulder, rightShoulder := joints[LeftShoulder], joints[RightShoulder]
	leftHip, rightHip := joints[LeftHip], joints[RightHip]
	leftAnkle, rightAnkle := joints[LeftAnkle], joints[RightAnkle]

	shoulderMid := midpoint(leftShoulder, rightShoulder)
	hipMid := midpoint(leftHip, rightHip)
	ankleMid := midpoint(leftAnkle, rightAnkle)

	verticalExtent := math.Abs(ankleMid.Y - shoulderMid.Y)

	minX := math.Min(math.Min(leftShoulder.X, rightShoulder.X), math.Min(leftHip.X, rightHip.X))
	maxX := math.Max(math.Max(leftShoulder.X, rightShoulder.X), math.Max(leftHip.X, rightHip.X))
	horizontalSpread := maxX - minX

	var aspectRatio float64
	if verticalExtent > 0 {
		aspectRatio = horizontalSpread / verticalExtent
	}

	features := FeatureVector{
		AspectRatio:      aspectRatio,
		BodyAngleDegrees: bodyAngle(shoulderMid, hipMid),
		LowestPointY:     clamp01(ankleMid.Y),
	}
	if !finite(features.AspectRatio) || !finite(features.BodyAngleDegrees) {
		return FeatureVector{}, false
	}
	return features, true
}

// bodyAngle returns the tilt of the shoulder->hip segment away from the
// vertical axis, folded into [0,90].
func bodyAngle(shoulder, hip Point) float64 {
	dx := hip.X - shoulder.X
	dy := hip.Y - shoulder.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	// Angle from the horizontal axis, folded so left/right facing bodies agree.
	theta := math.Abs(math.Atan2(dy, dx) * 180 / math.Pi)
	fromHorizontal := math.Min(theta, 180-theta)
	return 90 - fromHorizontal
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
