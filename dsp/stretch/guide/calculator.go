package guide

import (
	"log/slog"
	"math"
)

// StretchCalculator converts the live ratios into the per-frame output
// hop. The single-frame form is all the multi-resolution engine needs;
// transient-driven hop redistribution happens upstream through the
// guide's band choices instead.
type StretchCalculator struct {
	sampleRate     int
	inputIncrement int
	fixed          bool
	log            *slog.Logger
}

// NewStretchCalculator creates a calculator. inputIncrement and fixed
// describe a fixed analysis increment; the stretcher passes 1 and false
// as its hops are chosen per ratio.
func NewStretchCalculator(sampleRate, inputIncrement int, fixed bool, log *slog.Logger) *StretchCalculator {
	if log == nil {
		log = slog.Default()
	}
	return &StretchCalculator{
		sampleRate:     sampleRate,
		inputIncrement: inputIncrement,
		fixed:          fixed,
		log:            log,
	}
}

// Reset clears accumulated state. The single-frame calculator is
// stateless; Reset exists so callers can treat all collaborators
// uniformly.
func (s *StretchCalculator) Reset() {}

// CalculateSingle returns the output hop for one frame.
//
// effectivePitchRatio is the output/input ratio of the downstream
// resampler (1/pitchScale when pitch shifting); the engine must stretch
// by timeRatio/effectivePitchRatio so that the resampler lands the
// stream back on the requested duration. df scales the result and is
// 1.0 for a uniform stretch.
func (s *StretchCalculator) CalculateSingle(
	timeRatio, effectivePitchRatio, df float64,
	inhop, analysisWindow, synthesisWindow int,
	transient bool,
) int {
	if effectivePitchRatio <= 0 {
		s.log.Warn("stretch calculator: non-positive effective pitch ratio",
			"effectivePitchRatio", effectivePitchRatio)
		return inhop
	}

	ratio := timeRatio / effectivePitchRatio

	outhop := int(math.Floor(float64(inhop)*ratio*df + 0.5))
	if outhop < 1 {
		outhop = 1
	}
	return outhop
}
