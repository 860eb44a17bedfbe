package fall

// Hysteresis Fall Classifier
//
// Per-frame features are noisy: a single frame can show a wide silhouette
// while someone bends over, and pose models regularly drop joints. The
// classifier therefore accumulates evidence over consecutive frames.
//
//  1. A frame "indicates" a fall when the silhouette is wide
//     (AspectRatio > RatioThreshold) and either the feet are low in the frame
//     (LowestPointY > LowYThreshold) or the torso is tilted
//     (BodyAngleDegrees > AngleThreshold).
//  2. Indicated frames increment a counter by one. Clean frames decrement it
//     by DecayStep, never below zero.
//  3. When the counter first reaches ConfirmFrames the fall is confirmed and
//     exactly one FallEvent is recorded. Further indicated frames do not
//     record new events.
//  4. The confirmation stays latched until the counter decays back to zero,
//     at which point the classifier is re-armed for the next fall.
//
// Confidence is the counter expressed as a percentage of ConfirmFrames,
// capped at 100, on indicated frames and 0 on clean frames.

import "time"

// DateTimeLayout is the wall-clock format stored on fall events.
const DateTimeLayout = "2006-01-02 15:04:05"

// Classifier converts per-frame features into debounced fall events. A
// Classifier holds the state of exactly one stream and must not be shared
// between streams or goroutines.
type Classifier struct {
	cfg       Config
	fps       int
	now       func() time.Time
	counter   int
	confirmed bool
	events    []FallEvent
}

// ClassifierOption customises a Classifier.
type ClassifierOption func(*Classifier)

// WithClock replaces the wall clock used to stamp fall events.
func WithClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClassifier creates a classifier in the Standing state. fps is used to
// convert frame indices into stream timestamps.
func NewClassifier(cfg Config, fps int, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		cfg: cfg,
		fps: fps,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Indicates reports whether f, taken alone, looks like a fallen body.
func (c *Classifier) Indicates(f FeatureVector) bool {
	isHorizontalShape := f.AspectRatio > c.cfg.RatioThreshold
	isLow := f.LowestPointY > c.cfg.LowYThreshold
	isTilted := f.BodyAngleDegrees > c.cfg.AngleThreshold
	return isHorizontalShape && (isLow || isTilted)
}

// Classify advances the state machine by one frame.
func (c *Classifier) Classify(frameIndex int, f FeatureVector) Classification {
	result := Classification{}

	if c.Indicates(f) {
		result.Indicated = true
		c.counter++
		result.Confidence = c.confidence()

		if c.counter >= c.cfg.ConfirmFrames && !c.confirmed {
			c.confirmed = true
			event := FallEvent{
				TimestampSeconds:  c.timestamp(frameIndex),
				FrameIndex:        frameIndex,
				ConfidencePercent: result.Confidence,
				WallClockTime:     c.now().Format(DateTimeLayout),
			}
			c.events = append(c.events, event)
			result.Event = &event
		}
	} else {
		c.counter -= c.cfg.DecayStep
		if c.counter < 0 {
			c.counter = 0
		}
		if c.counter == 0 {
			c.confirmed = false
		}
	}

	result.Status = c.status()
	result.FallConfirmed = c.confirmed
	result.State = c.State()
	result.Counter = c.counter
	return result
}

// State returns the current hysteresis state.
func (c *Classifier) State() State {
	switch {
	case c.confirmed:
		return Confirmed
	case c.counter > 0:
		return Suspected
	default:
		return Standing
	}
}

// Events returns a copy of the fall events recorded so far, in frame order.
func (c *Classifier) Events() []FallEvent {
	out := make([]FallEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Classifier) status() Status {
	switch {
	case c.counter >= c.cfg.ConfirmFrames:
		return StatusFallDetected
	case c.counter > 0:
		return StatusPotentialFall
	default:
		return StatusStanding
	}
}

func (c *Classifier) confidence() float64 {
	confidence := 100 * float64(c.counter) / float64(c.cfg.ConfirmFrames)
	if confidence > 100 {
		return 100
	}
	return confidence
}

func (c *Classifier) timestamp(frameIndex int) float64 {
	if c.fps <= 0 {
		return 0
	}
	return float64(frameIndex) / float64(c.fps)
}
