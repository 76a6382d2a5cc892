package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Formant describes one vocal-tract resonance.
type Formant struct {
	Frequency float64
	Bandwidth float64
}

// DeterministicVowel synthesizes a vowel-like tone: a harmonic series at
// the fundamental, with each harmonic's amplitude following a set of
// resonance peaks. The result is deterministic and band-limited to
// sampleRate/2.
func DeterministicVowel(fundamentalHz, sampleRate float64, formants []Formant, length int) []float64 {
	out := make([]float64, length)

	maxHarmonic := int(sampleRate / 2 / fundamentalHz)
	for h := 1; h <= maxHarmonic; h++ {
		freq := float64(h) * fundamentalHz

		// Sum of resonance responses; each formant contributes a
		// Lorentzian peak around its centre.
		amp := 0.0
		for _, f := range formants {
			bw := f.Bandwidth
			if bw <= 0 {
				bw = 80
			}
			d := (freq - f.Frequency) / bw
			amp += 1.0 / (1.0 + d*d)
		}

		step := 2 * math.Pi * freq / sampleRate
		for i := range out {
			out[i] += amp * math.Sin(step*float64(i))
		}
	}

	// Normalize to a peak near 0.5 to stay clear of clipping concerns.
	peak := 0.0
	for _, v := range out {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		for i := range out {
			out[i] *= 0.5 / peak
		}
	}

	return out
}
