package fall

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FeatureStats summarises one feature over the conclusive frames of a run.
type FeatureStats struct {
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

// RunSummary carries the statistics reported at the end of a run.
type RunSummary struct {
	PersonFrames       int            `json:"personFrames"`
	InconclusiveFrames int            `json:"inconclusiveFrames"`
	StatusFrames       map[Status]int `json:"statusFrames"`
	PeakConfidence     float64        `json:"peakConfidence"`
	AverageConfidence  float64        `json:"averageConfidence"`
	AspectRatio        FeatureStats   `json:"aspectRatio"`
	BodyAngle          FeatureStats   `json:"bodyAngle"`
	LowestPointY       FeatureStats   `json:"lowestPointY"`
}

// summaryBuilder accumulates per-frame reports into a RunSummary.
type summaryBuilder struct {
	personFrames       int
	inconclusiveFrames int
	statusFrames       map[Status]int
	peakConfidence     float64
	ratios             []float64
	angles             []float64
	lows               []float64
}

func newSummaryBuilder() *summaryBuilder {
	return &summaryBuilder{statusFrames: make(map[Status]int)}
}

func (b *summaryBuilder) add(report FrameReport) {
	b.statusFrames[report.Classification.Status]++
	if report.PersonDetected {
		b.personFrames++
	}
	if report.Inconclusive {
		b.inconclusiveFrames++
	} else {
		b.ratios = append(b.ratios, report.Features.AspectRatio)
		b.angles = append(b.angles, report.Features.BodyAngleDegrees)
		b.lows = append(b.lows, report.Features.LowestPointY)
	}
	if report.Classification.Confidence > b.peakConfidence {
		b.peakConfidence = report.Classification.Confidence
	}
}

func (b *summaryBuilder) build(events []FallEvent) RunSummary {
	summary := RunSummary{
		PersonFrames:       b.personFrames,
		InconclusiveFrames: b.inconclusiveFrames,
		StatusFrames:       b.statusFrames,
		PeakConfidence:     b.peakConfidence,
		AspectRatio:        describe(b.ratios),
		BodyAngle:          describe(b.angles),
		LowestPointY:       describe(b.lows),
	}
	if len(events) > 0 {
		confidences := make([]float64, len(events))
		for i, e := range events {
			confidences[i] = e.ConfidencePercent
		}
		summary.AverageConfidence = stat.Mean(confidences, nil)
	}
	return summary
}

func describe(values []float64) FeatureStats {
	if len(values) == 0 {
		return FeatureStats{}
	}
	return FeatureStats{
		Mean: stat.Mean(values, nil),
		Max:  floats.Max(values),
	}
}
