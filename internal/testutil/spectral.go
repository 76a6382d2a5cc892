package testutil

import (
	"math"
)

// goertzelPower evaluates the power of one frequency component over the
// whole signal using the Goertzel recurrence.
func goertzelPower(signal []float64, freqHz, sampleRate float64) float64 {
	coeff := 2 * math.Cos(2*math.Pi*freqHz/sampleRate)

	var s0, s1 float64
	for _, x := range signal {
		s := x + coeff*s0 - s1
		s1 = s0
		s0 = s
	}

	return s0*s0 + s1*s1 - coeff*s0*s1
}

// DominantFrequency scans [loHz, hiHz] in stepHz increments and returns
// the frequency with the highest Goertzel power. A Hann window is
// applied to limit leakage from frame edges.
func DominantFrequency(signal []float64, sampleRate, loHz, hiHz, stepHz float64) float64 {
	windowed := make([]float64, len(signal))
	n := float64(len(signal))
	for i, v := range signal {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/n)
		windowed[i] = v * w
	}

	best := loHz
	bestPower := -1.0
	for f := loHz; f <= hiHz; f += stepHz {
		p := goertzelPower(windowed, f, sampleRate)
		if p > bestPower {
			bestPower = p
			best = f
		}
	}
	return best
}

// SpectralCentroid returns the power-weighted mean frequency of the
// signal in Hz, averaged over Hann-windowed frames.
func SpectralCentroid(signal []float64, sampleRate float64) float64 {
	const frameSize = 4096
	const hop = 2048
	const bins = 256

	if len(signal) < frameSize {
		return 0
	}

	var num, den float64
	frame := make([]float64, frameSize)

	for off := 0; off+frameSize <= len(signal); off += hop {
		for i := 0; i < frameSize; i++ {
			w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/frameSize)
			frame[i] = signal[off+i] * w
		}

		for b := 1; b < bins; b++ {
			freq := float64(b) * sampleRate / 2 / bins
			p := goertzelPower(frame, freq, sampleRate)
			num += freq * p
			den += p
		}
	}

	if den == 0 {
		return 0
	}
	return num / den
}

// BandCentroid returns the power-weighted centroid frequency of the
// signal within [loHz, hiHz], evaluated on a stepHz grid. With a
// harmonic signal this locates the resonance peak the band contains
// even when no harmonic falls exactly on it.
func BandCentroid(signal []float64, sampleRate, loHz, hiHz, stepHz float64) float64 {
	var num, den float64
	for f := loHz; f <= hiHz; f += stepHz {
		p := goertzelPower(signal, f, sampleRate)
		num += f * p
		den += p
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// BestCorrelation slides b against a over lags [lagMin, lagMax] and
// returns the highest normalized cross-correlation and the lag at which
// it occurs. A positive lag means b is delayed relative to a.
func BestCorrelation(a, b []float64, lagMin, lagMax int) (float64, int) {
	bestCorr := math.Inf(-1)
	bestLag := lagMin

	for lag := lagMin; lag <= lagMax; lag++ {
		var dot, ea, eb float64
		count := 0
		for i := range a {
			j := i + lag
			if j < 0 || j >= len(b) {
				continue
			}
			dot += a[i] * b[j]
			ea += a[i] * a[i]
			eb += b[j] * b[j]
			count++
		}
		if count == 0 || ea == 0 || eb == 0 {
			continue
		}
		corr := dot / math.Sqrt(ea*eb)
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	return bestCorr, bestLag
}
