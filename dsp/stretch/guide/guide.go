package guide

import (
	"log/slog"
	"math"
)

// Default frequency plan. The long FFT carries the low band where
// frequency resolution matters, the short FFT carries the top band
// where time resolution matters, and the classification FFT covers the
// middle. Crossovers move within the configured limits as the
// segmentation changes.
const (
	shortestFFTSize       = 1024
	classificationFFTSize = 2048
	longestFFTSize        = 4096

	defaultCrossLowHz  = 700.0
	tightCrossLowHz    = 350.0
	maxCrossLowHz      = 1400.0
	defaultCrossHighHz = 4800.0
	maxCrossHighHz     = 10000.0

	kickF0Hz = 40.0
	kickF1Hz = 600.0

	// A kick onset is declared when the low-band level jumps by this
	// factor from one hop to the next and sits above the spectral mean.
	kickOnsetRatio = 2.5

	// An output hop above this drops the shortest FFT scale, whose
	// overlap would otherwise be inadequate.
	maxOuthopForShortestFFT = 256
)

// BandLimits bounds the frequency range one FFT scale can ever be asked
// to cover. B0Min and B1Max are the corresponding bin bounds; analysis
// and phase advance restrict their per-bin work to that range.
type BandLimits struct {
	FFTSize int
	F0Min   float64
	F1Max   float64
	B0Min   int
	B1Max   int
}

// Configuration is the immutable scale plan shared by the stretcher,
// the phase advance, and the synthesis stage.
type Configuration struct {
	FFTBandLimits         []BandLimits
	LongestFFTSize        int
	ClassificationFFTSize int
	SampleRate            float64
}

// NewConfiguration derives the scale plan for a sample rate.
func NewConfiguration(sampleRate float64) Configuration {
	nyquist := sampleRate / 2

	limit := func(fftSize int, f0, f1 float64) BandLimits {
		if f1 > nyquist {
			f1 = nyquist
		}
		return BandLimits{
			FFTSize: fftSize,
			F0Min:   f0,
			F1Max:   f1,
			B0Min:   BinForFrequency(f0, fftSize, sampleRate),
			B1Max:   BinForFrequency(f1, fftSize, sampleRate),
		}
	}

	return Configuration{
		FFTBandLimits: []BandLimits{
			limit(longestFFTSize, 0, maxCrossLowHz),
			limit(classificationFFTSize, 0, nyquist),
			limit(shortestFFTSize, defaultCrossHighHz, nyquist),
		},
		LongestFFTSize:        longestFFTSize,
		ClassificationFFTSize: classificationFFTSize,
		SampleRate:            sampleRate,
	}
}

// BandLimitsFor returns the limits for one FFT size, or nil.
func (c *Configuration) BandLimitsFor(fftSize int) *BandLimits {
	for i := range c.FFTBandLimits {
		if c.FFTBandLimits[i].FFTSize == fftSize {
			return &c.FFTBandLimits[i]
		}
	}
	return nil
}

// BinForFrequency returns the nearest bin index for a frequency in Hz.
func BinForFrequency(freq float64, fftSize int, sampleRate float64) int {
	return int(math.Floor(freq*float64(fftSize)/sampleRate + 0.5))
}

// FrequencyForBin returns the centre frequency of a bin in Hz.
func FrequencyForBin(bin, fftSize int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(fftSize)
}

// GuidanceBand names one active frequency band and the FFT scale that
// resynthesises it.
type GuidanceBand struct {
	FFTSize int
	F0, F1  float64
}

// KickGuidance flags a transient onset in the kick band.
type KickGuidance struct {
	Present bool
	F0, F1  float64
}

// Guidance is the per-channel, per-frame output of the guide.
type Guidance struct {
	// FFTBands lists the active bands in ascending frequency order.
	// The slice is reused frame to frame; callers must size its
	// capacity with InitGuidance before the audio path starts.
	FFTBands    []GuidanceBand
	Kick        KickGuidance
	PreKick     KickGuidance
	PhaseReset  bool
	ChannelLock bool
}

// InitGuidance prepares a Guidance for allocation-free reuse.
func InitGuidance(g *Guidance) {
	g.FFTBands = make([]GuidanceBand, 0, 3)
}

// Parameters configures a Guide.
type Parameters struct {
	SampleRate float64
}

// Guide converts classification and segmentation history into per-frame
// phase and mixing guidance. It is shared across channels and holds no
// per-channel state.
type Guide struct {
	params Parameters
	config Configuration
	log    *slog.Logger
}

// New creates a guide for the given sample rate.
func New(params Parameters, log *slog.Logger) *Guide {
	if log == nil {
		log = slog.Default()
	}
	return &Guide{
		params: params,
		config: NewConfiguration(params.SampleRate),
		log:    log,
	}
}

// Config returns the immutable scale plan.
func (g *Guide) Config() Configuration {
	return g.config
}

// UpdateGuidance fills out from the current frame's classification
// data. mag and prevMag are the classification-scale magnitudes scaled
// by 1/fftSize; readaheadMag is the unscaled one-hop-ahead magnitude
// spectrum (the scaling is compensated internally).
func (g *Guide) UpdateGuidance(
	ratio float64,
	prevOuthop int,
	mag, prevMag, readaheadMag []float64,
	seg, prevSeg, nextSeg Segmentation,
	meanMag float64,
	unityCount int,
	realtime bool,
	channelsTogether bool,
	out *Guidance,
) {
	rate := g.params.SampleRate
	classify := g.config.ClassificationFFTSize

	out.ChannelLock = channelsTogether
	out.PhaseReset = unityCount > 0

	g.detectKick(mag, prevMag, readaheadMag, meanMag, out)

	out.FFTBands = out.FFTBands[:0]

	if out.PhaseReset {
		// At unity the classification scale alone resynthesises the
		// whole spectrum with its analysis phases, which keeps the
		// output bit-faithful to the input apart from windowing.
		out.FFTBands = append(out.FFTBands, GuidanceBand{
			FFTSize: classify, F0: 0, F1: rate / 2,
		})
		return
	}

	crossLow := defaultCrossLowHz
	if seg.PercussiveBelow >= crossLow || nextSeg.PercussiveBelow >= crossLow {
		// Low percussive content wants the time resolution of the
		// shorter scales, so shrink the long-FFT band.
		crossLow = tightCrossLowHz
	}

	crossHigh := defaultCrossHighHz
	if seg.ResidualAbove > crossHigh {
		crossHigh = math.Min(seg.ResidualAbove, maxCrossHighHz)
	}
	if crossHigh > rate/2 {
		crossHigh = rate / 2
	}

	if prevOuthop > maxOuthopForShortestFFT {
		out.FFTBands = append(out.FFTBands,
			GuidanceBand{FFTSize: longestFFTSize, F0: 0, F1: crossLow},
			GuidanceBand{FFTSize: classify, F0: crossLow, F1: rate / 2},
		)
		return
	}

	out.FFTBands = append(out.FFTBands,
		GuidanceBand{FFTSize: longestFFTSize, F0: 0, F1: crossLow},
		GuidanceBand{FFTSize: classify, F0: crossLow, F1: crossHigh},
		GuidanceBand{FFTSize: shortestFFTSize, F0: crossHigh, F1: rate / 2},
	)
}

func (g *Guide) detectKick(mag, prevMag, readaheadMag []float64, meanMag float64, out *Guidance) {
	classify := g.config.ClassificationFFTSize
	rate := g.params.SampleRate

	lo := BinForFrequency(kickF0Hz, classify, rate)
	hi := BinForFrequency(kickF1Hz, classify, rate)
	if hi >= len(mag) {
		hi = len(mag) - 1
	}
	if lo < 1 {
		lo = 1
	}

	var curr, prev, next float64
	for i := lo; i <= hi; i++ {
		curr += mag[i]
		prev += prevMag[i]
		next += readaheadMag[i]
	}
	n := float64(hi - lo + 1)
	curr /= n
	prev /= n
	// The readahead spectrum is unscaled; bring it into the same
	// domain as mag before comparing.
	next /= n * float64(classify)

	out.Kick = KickGuidance{
		Present: curr > kickOnsetRatio*prev && curr > meanMag,
		F0:      kickF0Hz,
		F1:      kickF1Hz,
	}
	out.PreKick = KickGuidance{
		Present: !out.Kick.Present && next > kickOnsetRatio*curr && next > meanMag,
		F0:      kickF0Hz,
		F1:      kickF1Hz,
	}
}
