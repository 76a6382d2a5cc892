package resample

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChannelCount indicates a non-positive channel count.
	ErrInvalidChannelCount = errors.New("resample: invalid channel count")
	// ErrInvalidSampleRate indicates a non-positive initial sample rate.
	ErrInvalidSampleRate = errors.New("resample: invalid sample rate")
)

// Quality selects the interpolation kernel.
type Quality int

const (
	// QualityFastestTolerable uses linear interpolation.
	QualityFastestTolerable Quality = iota
	// QualityBest uses 4-point Catmull-Rom cubic interpolation.
	QualityBest
)

// Dynamism describes how often the conversion ratio is expected to
// change over the life of the resampler.
type Dynamism int

const (
	RatioMostlyFixed Dynamism = iota
	RatioOftenChanging
)

// RatioChange describes how a changed ratio is taken up.
type RatioChange int

const (
	// SmoothRatioChange slews towards a new ratio over successive calls.
	SmoothRatioChange RatioChange = iota
	// SuddenRatioChange adopts a new ratio immediately.
	SuddenRatioChange
)

// Parameters configures a Resampler.
type Parameters struct {
	Quality           Quality
	Dynamism          Dynamism
	RatioChange       RatioChange
	InitialSampleRate float64
	// MaxBufferSize is the largest inCount a single Resample call will
	// see; it is advisory and Resample does not check inCount against it.
	MaxBufferSize int
}

// smoothingCoeff controls how fast a slewed ratio converges; with the
// frame rates the stretcher runs at this settles within a few frames.
const smoothingCoeff = 0.4

// Resampler is a streaming variable-ratio sample rate converter. Each
// channel keeps a 4-sample history so that chunk boundaries are
// seamless. All channels advance through a shared phase, so every
// channel always yields the same output count.
//
// It allocates only at construction and is not safe for concurrent use.
type Resampler struct {
	params   Parameters
	channels int

	ratio   float64 // current (possibly slewed) ratio
	phase   float64 // position within the current input sample
	history [][]float64
	primed  bool
}

// New creates a resampler for the given channel count.
func New(params Parameters, channels int) (*Resampler, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	if params.InitialSampleRate <= 0 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidSampleRate, params.InitialSampleRate)
	}

	history := make([][]float64, channels)
	for c := range history {
		history[c] = make([]float64, 4)
	}

	return &Resampler{
		params:   params,
		channels: channels,
		history:  history,
	}, nil
}

// EffectiveRatio reports the ratio the resampler will actually use for
// a requested ratio. The interpolating kernels track any ratio exactly.
func (r *Resampler) EffectiveRatio(ratio float64) float64 {
	return ratio
}

// Reset discards interpolation history and phase.
func (r *Resampler) Reset() {
	for c := range r.history {
		for i := range r.history[c] {
			r.history[c][i] = 0
		}
	}
	r.phase = 0
	r.ratio = 0
	r.primed = false
}

// Resample converts inCount samples per channel from in at the given
// ratio (output samples per input sample), writing at most outCap
// samples per channel into out. It returns the number of samples
// written per channel. final indicates no further input will follow.
func (r *Resampler) Resample(out [][]float64, outCap int, in [][]float64, inCount int, ratio float64, final bool) int {
	if inCount <= 0 || outCap <= 0 || ratio <= 0 {
		return 0
	}

	r.updateRatio(ratio)
	step := 1.0 / r.ratio

	if !r.primed {
		// Seed the history with the first sample so the leading edge
		// interpolates from a held value rather than from silence.
		for c := 0; c < r.channels; c++ {
			for i := range r.history[c] {
				r.history[c][i] = in[c][0]
			}
		}
		r.primed = true
	}

	written := 0
	for i := 0; i < inCount; i++ {
		for c := 0; c < r.channels; c++ {
			h := r.history[c]
			h[3], h[2], h[1], h[0] = h[2], h[1], h[0], in[c][i]
		}

		for r.phase < 1.0 && written < outCap {
			for c := 0; c < r.channels; c++ {
				out[c][written] = r.interpolate(r.history[c], r.phase)
			}
			written++
			r.phase += step
		}
		r.phase -= 1.0
	}

	if final && written < outCap {
		// Drain the kernel latency by pushing zeros through the history.
		for i := 0; i < 2 && written < outCap; i++ {
			for c := 0; c < r.channels; c++ {
				h := r.history[c]
				h[3], h[2], h[1], h[0] = h[2], h[1], h[0], 0
			}
			for r.phase < 1.0 && written < outCap {
				for c := 0; c < r.channels; c++ {
					out[c][written] = r.interpolate(r.history[c], r.phase)
				}
				written++
				r.phase += step
			}
			r.phase -= 1.0
		}
	}

	return written
}

func (r *Resampler) updateRatio(ratio float64) {
	if r.ratio == 0 || r.params.RatioChange == SuddenRatioChange {
		r.ratio = ratio
		return
	}
	r.ratio += (ratio - r.ratio) * smoothingCoeff
}

// interpolate evaluates the kernel at fractional position x in [0, 1)
// between history[2] (x = 0) and history[1] (x = 1).
func (r *Resampler) interpolate(h []float64, x float64) float64 {
	if r.params.Quality == QualityFastestTolerable {
		return h[2] + (h[1]-h[2])*x
	}

	// Catmull-Rom through h[3], h[2], h[1], h[0].
	a := (-h[3] + 3*h[2] - 3*h[1] + h[0]) * 0.5
	b := h[3] - 2.5*h[2] + 2*h[1] - 0.5*h[0]
	c := (h[1] - h[3]) * 0.5

	return ((a*x+b)*x+c)*x + h[2]
}
