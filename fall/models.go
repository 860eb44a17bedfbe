package fall

import "time"

// Point is a normalised image position: (0,0) is the top-left corner and
// (1,1) the bottom-right corner of the frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// JointSet maps joint names to their normalised positions for one frame.
type JointSet map[JointName]Point

// Frame is one decoded video frame handed from a FrameSource to a PoseSource.
type Frame struct {
	Index     int       // 1-based position in the stream
	Width     int       // pixels, 0 when unknown
	Height    int       // pixels, 0 when unknown
	Data      []byte    // JPEG encoded image, nil for landmark recordings
	Joints    JointSet  // joints attached by the source (recordings), nil otherwise
	Timestamp time.Time // capture time
}

// FeatureVector holds the geometric descriptors derived from a JointSet.
type FeatureVector struct {
	AspectRatio      float64 `json:"aspectRatio"`
	BodyAngleDegrees float64 `json:"bodyAngle"`
	LowestPointY     float64 `json:"lowestPointY"`
}

// IsZero reports whether f is the sentinel "no person" vector.
func (f FeatureVector) IsZero() bool {
	return f.AspectRatio == 0 && f.BodyAngleDegrees == 0 && f.LowestPointY == 0
}

// FallEvent records one confirmed fall. Field names match the results file
// consumed by downstream tooling.
type FallEvent struct {
	TimestampSeconds  float64 `json:"timestamp" bson:"timestamp"`
	FrameIndex        int     `json:"frame" bson:"frame"`
	ConfidencePercent float64 `json:"confidence" bson:"confidence"`
	WallClockTime     string  `json:"datetime" bson:"datetime"`
}

// RunResult aggregates the outcome of one stream run.
type RunResult struct {
	TotalFrames int         `json:"totalFrames"`
	FPS         int         `json:"fps"`
	FallEvents  []FallEvent `json:"fallEvents"`
	TotalFalls  int         `json:"totalFalls"`

	Summary RunSummary `json:"-"`
}

// FirstEvent returns the earliest fall event of the run, if any.
func (r *RunResult) FirstEvent() (FallEvent, bool) {
	if r == nil || len(r.FallEvents) == 0 {
		return FallEvent{}, false
	}
	return r.FallEvents[0], true
}

// Status is the per-frame label reported by the classifier.
type Status string

const (
	StatusStanding      Status = "standing"
	StatusPotentialFall Status = "potential_fall"
	StatusFallDetected  Status = "fall_detected"
)

// Label returns the text drawn on annotated frames.
func (s Status) Label() string {
	switch s {
	case StatusPotentialFall:
		return "Potential Fall"
	case StatusFallDetected:
		return "FALL DETECTED!"
	default:
		return "Standing"
	}
}

// State is the hysteresis state of a Classifier.
type State int

const (
	// Standing: counter is zero and detection is armed.
	Standing State = iota
	// Suspected: counter is positive but no fall has been confirmed yet.
	Suspected
	// Confirmed: a fall was confirmed and stays latched until the counter
	// decays back to zero.
	Confirmed
)

func (s State) String() string {
	switch s {
	case Suspected:
		return "suspected"
	case Confirmed:
		return "confirmed"
	default:
		return "standing"
	}
}

// Classification is the classifier output for one frame.
type Classification struct {
	Status        Status     `json:"status"`
	FallConfirmed bool       `json:"fallConfirmed"`
	Confidence    float64    `json:"confidence"`
	State         State      `json:"-"`
	Counter       int        `json:"counter"`
	Indicated     bool       `json:"indicated"`
	Event         *FallEvent `json:"event,omitempty"`
}

// FrameReport is what observers receive after a frame was classified.
type FrameReport struct {
	Index          int            `json:"frame"`
	PersonDetected bool           `json:"personDetected"`
	Inconclusive   bool           `json:"inconclusive"`
	Features       FeatureVector  `json:"features"`
	Classification Classification `json:"classification"`
	Joints         JointSet       `json:"-"`
}
