package fall

// JointName identifies an anatomical landmark.
type JointName string

const (
	Nose          JointName = "nose"
	LeftShoulder  JointName = "left_shoulder"
	RightShoulder JointName = "right_shoulder"
	LeftElbow     JointName = "left_elbow"
	RightElbow    JointName = "right_elbow"
	LeftWrist     JointName = "left_wrist"
	RightWrist    JointName = "right_wrist"
	LeftHip       JointName = "left_hip"
	RightHip      JointName = "right_hip"
	LeftKnee      JointName = "left_knee"
	RightKnee     JointName = "right_knee"
	LeftAnkle     JointName = "left_ankle"
	RightAnkle    JointName = "right_ankle"
)

// RequiredJoints are the joints the feature extractor needs on every frame.
var RequiredJoints = []JointName{
	LeftShoulder, RightShoulder,
	LeftHip, RightHip,
	LeftAnkle, RightAnkle,
}

// MediaPipe pose landmark indices (33-point BlazePose topology).
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
var mediaPipeJoints = map[int]JointName{
	0:  Nose,
	11: LeftShoulder,
	12: RightShoulder,
	13: LeftElbow,
	14: RightElbow,
	15: LeftWrist,
	16: RightWrist,
	23: LeftHip,
	24: RightHip,
	25: LeftKnee,
	26: RightKnee,
	27: LeftAnkle,
	28: RightAnkle,
}

// MediaPipeLandmarkCount is the number of landmarks in a full pose result.
const MediaPipeLandmarkCount = 33

// Landmark is one raw pose-model output point.
type Landmark struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Z          float64 `json:"z,omitempty" msgpack:"z"`
	Visibility float64 `json:"visibility,omitempty" msgpack:"visibility"`
}

// JointSetFromLandmarks converts a MediaPipe-ordered landmark list into a
// JointSet. It returns nil when the list is empty (no person detected).
// Landmarks beyond the known indices are ignored.
func JointSetFromLandmarks(landmarks []Landmark) JointSet {
	if len(landmarks) == 0 {
		return nil
	}
	joints := make(JointSet, len(mediaPipeJoints))
	for idx, name := range mediaPipeJoints {
		if idx >= len(landmarks) {
			continue
		}
		lm := landmarks[idx]
		joints[name] = Point{X: lm.X, Y: lm.Y}
	}
	return joints
}

// LandmarksFromJointSet is the inverse of JointSetFromLandmarks, used when
// writing recordings. Unknown joints are left at the zero landmark.
func LandmarksFromJointSet(joints JointSet) []Landmark {
	if joints == nil {
		return nil
	}
	landmarks := make([]Landmark, MediaPipeLandmarkCount)
	for idx, name := range mediaPipeJoints {
		if p, ok := joints[name]; ok {
			landmarks[idx] = Landmark{X: p.X, Y: p.Y, Visibility: 1}
		}
	}
	return landmarks
}
