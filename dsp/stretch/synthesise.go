package stretch

import (
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-stretch/dsp/stretch/guide"
)

// synthesiseChannel resynthesises every active band of one channel and
// mixes the scale accumulators down into outhop output samples.
func (s *Stretcher) synthesiseChannel(c, outhop int, draining bool) {
	longest := s.config.LongestFFTSize
	cd := s.channels[c]

	for _, band := range cd.guidance.FFTBands {
		fftSize := band.FFTSize
		scale := cd.scales[fftSize]
		sd := s.scales[fftSize]

		// Next frame's guide deltas need this frame's magnitudes as
		// they were before band filtering.
		copy(scale.prevMag, scale.mag)

		winscale := float64(outhop) / sd.windowScaleFactor

		// The band filter is applied naively in the frequency domain;
		// the shorter resynthesis window limits the aliasing. Each
		// scale is resynthesised individually and then summed, which
		// keeps the scaling manageable under a varying synthesis hop.
		lowBin := guide.BinForFrequency(band.F0, fftSize, s.params.SampleRate)
		highBin := guide.BinForFrequency(band.F1, fftSize, s.params.SampleRate)
		// An even upper boundary bin would flip sign between adjacent
		// frames of the shifted frame sequence; keep it odd.
		if highBin%2 == 0 && highBin > 0 {
			highBin--
		}
		if highBin > scale.bufSize {
			highBin = scale.bufSize
		}
		if lowBin > highBin {
			lowBin = highBin
		}

		if lowBin > 0 {
			zero(scale.real[:lowBin])
			zero(scale.imag[:lowBin])
		}

		magBand := scale.mag[lowBin:highBin]
		vecmath.ScaleBlock(magBand, magBand, winscale)

		polarToCartesian(scale.real[lowBin:highBin], scale.imag[lowBin:highBin],
			magBand, scale.advancedPhase[lowBin:highBin])

		if highBin < scale.bufSize {
			zero(scale.real[highBin:])
			zero(scale.imag[highBin:])
		}

		if err := sd.fft.Inverse(scale.real, scale.imag, scale.timeDomain); err != nil {
			s.log.Error("stretch: inverse FFT failed", "fftSize", fftSize, "error", err)
		}

		fftShift(scale.timeDomain)

		// The synthesis window may be shorter than the analysis
		// window, so cut from the middle of the frame; the accumulator
		// matches the longest scale, so the target is offset as well.
		synthSize := sd.synthesisWindow.Size()
		fromOffset := (fftSize - synthSize) / 2
		toOffset := (longest - synthSize) / 2

		sd.synthesisWindow.CutAndAdd(scale.timeDomain[fromOffset:],
			scale.accumulator[toOffset:])
	}

	// Mix this channel and move the accumulators along.
	mix := cd.mixdown[:outhop]
	zero(mix)

	for _, fftSize := range s.scaleSizes {
		scale := cd.scales[fftSize]

		vecmath.AddBlockInPlace(mix, scale.accumulator[:outhop])

		n := len(scale.accumulator) - outhop
		copy(scale.accumulator[:n], scale.accumulator[outhop:])
		zero(scale.accumulator[n:])

		if draining {
			if scale.accumulatorFill > outhop {
				scale.accumulatorFill -= outhop
			} else {
				scale.accumulatorFill = 0
			}
		} else {
			scale.accumulatorFill = len(scale.accumulator)
		}
	}
}
