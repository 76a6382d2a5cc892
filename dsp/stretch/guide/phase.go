package guide

import (
	"log/slog"
	"math"
)

// A bin whose magnitude jumps by more than this factor from the
// previous frame is treated as a transient and has its phase reset.
const transientGrowth = 4.0

// PhaseAdvanceParameters configures a PhaseAdvance.
type PhaseAdvanceParameters struct {
	FFTSize    int
	SampleRate float64
	Channels   int
}

// PhaseAdvance computes the synthesis phases for one FFT scale across
// all channels. It retains the previous frame's analysis and synthesis
// phases per channel, so one instance serves exactly one scale of one
// stretcher.
type PhaseAdvance struct {
	params PhaseAdvanceParameters
	log    *slog.Logger

	omega        []float64
	prevPhase    [][]float64
	prevAdvanced [][]float64
	started      bool
}

// NewPhaseAdvance creates a phase advance for one scale.
func NewPhaseAdvance(params PhaseAdvanceParameters, log *slog.Logger) *PhaseAdvance {
	if log == nil {
		log = slog.Default()
	}

	bins := params.FFTSize/2 + 1

	omega := make([]float64, bins)
	for i := range omega {
		omega[i] = 2 * math.Pi * float64(i) / float64(params.FFTSize)
	}

	prevPhase := make([][]float64, params.Channels)
	prevAdvanced := make([][]float64, params.Channels)
	for c := 0; c < params.Channels; c++ {
		prevPhase[c] = make([]float64, bins)
		prevAdvanced[c] = make([]float64, bins)
	}

	return &PhaseAdvance{
		params:       params,
		log:          log,
		omega:        omega,
		prevPhase:    prevPhase,
		prevAdvanced: prevAdvanced,
	}
}

// Reset discards phase history; the next frame starts from the analysis
// phases.
func (p *PhaseAdvance) Reset() {
	p.started = false
}

// Advance fills outPhase for every channel from the current and
// previous magnitudes and phases, under the per-channel guidance.
// prevInhop and prevOuthop are the hops that produced the previous
// frame, which is what the inter-frame phase deltas correspond to.
//
// Analysis is expected to be complete for all channels before this is
// called; when guidance requests channel locking the bins of quieter
// channels follow the phase increment of the loudest channel.
func (p *PhaseAdvance) Advance(
	outPhase, mag, phase, prevMag [][]float64,
	config *Configuration,
	guidance []*Guidance,
	prevInhop, prevOuthop int,
) {
	limits := config.BandLimitsFor(p.params.FFTSize)
	if limits == nil {
		return
	}
	b0, b1 := limits.B0Min, limits.B1Max

	if prevInhop < 1 {
		prevInhop = 1
	}
	ratio := float64(prevOuthop) / float64(prevInhop)

	channels := p.params.Channels

	for c := 0; c < channels; c++ {
		g := guidance[c]

		if g.PhaseReset || !p.started {
			copy(outPhase[c][b0:b1+1], phase[c][b0:b1+1])
			continue
		}

		kickLo, kickHi := -1, -1
		if g.Kick.Present {
			kickLo = BinForFrequency(g.Kick.F0, p.params.FFTSize, p.params.SampleRate)
			kickHi = BinForFrequency(g.Kick.F1, p.params.FFTSize, p.params.SampleRate)
		}

		for i := b0; i <= b1; i++ {
			if (i >= kickLo && i <= kickHi) ||
				mag[c][i] > transientGrowth*prevMag[c][i]+1e-12 {
				outPhase[c][i] = phase[c][i]
				continue
			}

			expected := p.omega[i] * float64(prevInhop)
			delta := princarg(phase[c][i] - p.prevPhase[c][i] - expected)
			outPhase[c][i] = p.prevAdvanced[c][i] + (expected+delta)*ratio
		}
	}

	if channels > 1 && p.started {
		p.lockChannels(outPhase, mag, phase, guidance, b0, b1)
	}

	for c := 0; c < channels; c++ {
		copy(p.prevPhase[c][b0:b1+1], phase[c][b0:b1+1])
		copy(p.prevAdvanced[c][b0:b1+1], outPhase[c][b0:b1+1])
	}
	p.started = true
}

// lockChannels rewrites the advance of locked channels so every channel
// applies the phase increment of the channel carrying the most energy
// in that bin.
func (p *PhaseAdvance) lockChannels(outPhase, mag, phase [][]float64, guidance []*Guidance, b0, b1 int) {
	channels := p.params.Channels

	for i := b0; i <= b1; i++ {
		cmax := 0
		for c := 1; c < channels; c++ {
			if mag[c][i] > mag[cmax][i] {
				cmax = c
			}
		}

		inc := outPhase[cmax][i] - p.prevAdvanced[cmax][i]
		for c := 0; c < channels; c++ {
			if c == cmax || !guidance[c].ChannelLock || guidance[c].PhaseReset {
				continue
			}
			outPhase[c][i] = p.prevAdvanced[c][i] + inc
		}
	}
}

// princarg wraps a phase into [-pi, pi).
func princarg(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x - math.Pi
}
