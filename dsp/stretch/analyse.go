package stretch

import (
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-stretch/dsp/stretch/guide"
)

const (
	formantLifterDivisor = 650.0
	formantTopFrequency  = 10000.0
	formantEnvelopeCeil  = 1.0e10
	formantMaxRatio      = 60.0
)

// analyseChannel runs the analysis stage for one channel: framing at
// every scale, forward FFTs, polar conversion, optional formant work,
// classification and guidance.
func (s *Stretcher) analyseChannel(c, inhop, prevInhop, prevOuthop int) {
	longest := s.config.LongestFFTSize
	classify := s.config.ClassificationFFTSize

	cd := s.channels[c]
	buf := cd.scales[longest].timeDomain

	got := cd.inbuf.Peek(buf, longest)
	zero(buf[got:])

	// One unwindowed frame at the longest scale; the shorter scales
	// are windowed copies from its centre. The classification scale is
	// handled separately because of its readahead, and the longest is
	// windowed in place last.
	for _, fftSize := range s.scaleSizes {
		if fftSize == classify || fftSize == longest {
			continue
		}
		offset := (longest - fftSize) / 2
		s.scales[fftSize].analysisWindow.Cut(buf[offset:], cd.scales[fftSize].timeDomain)
	}

	classifyScale := cd.scales[classify]
	readahead := &cd.readahead

	// The classification scale reads one hop ahead.
	s.scales[classify].analysisWindow.Cut(
		buf[(longest-classify)/2+inhop:], readahead.timeDomain)

	// A changed inhop invalidates the stored readahead: the frame it
	// anticipated is not the frame we are now analysing.
	haveValidReadahead := cd.haveReadahead
	if inhop != prevInhop {
		haveValidReadahead = false
	}

	if !haveValidReadahead {
		s.scales[classify].analysisWindow.Cut(
			buf[(longest-classify)/2:], classifyScale.timeDomain)
	}

	s.scales[longest].analysisWindow.CutInPlace(buf)

	// The previous readahead becomes the current classification frame.
	if haveValidReadahead {
		copy(classifyScale.mag, readahead.mag)
		copy(classifyScale.phase, readahead.phase)
	}

	fftShift(readahead.timeDomain)
	if err := s.scales[classify].fft.Forward(readahead.timeDomain,
		classifyScale.real, classifyScale.imag); err != nil {
		s.log.Error("stretch: readahead FFT failed", "error", err)
	}

	if b := s.config.BandLimitsFor(classify); b != nil {
		spec := toPolarSpec{
			magFrom:    0,
			magCount:   classify/2 + 1,
			polarFrom:  b.B0Min,
			polarCount: b.B1Max - b.B0Min + 1,
		}
		convertToPolar(readahead.mag, readahead.phase,
			classifyScale.real, classifyScale.imag, spec)

		vecmath.ScaleBlock(classifyScale.mag, classifyScale.mag, 1.0/float64(classify))
	}

	cd.haveReadahead = true

	// The remaining scales (and the classification scale too when the
	// readahead was unusable) are transformed in place, with polar
	// conversion restricted to each scale's admissible bin range. The
	// classification scale always converts magnitudes across the full
	// range: they all feed classification and formant analysis.
	for _, fftSize := range s.scaleSizes {
		if fftSize == classify && haveValidReadahead {
			continue
		}

		scale := cd.scales[fftSize]

		fftShift(scale.timeDomain)
		if err := s.scales[fftSize].fft.Forward(scale.timeDomain,
			scale.real, scale.imag); err != nil {
			s.log.Error("stretch: analysis FFT failed", "fftSize", fftSize, "error", err)
		}

		b := s.config.BandLimitsFor(fftSize)
		if b == nil {
			continue
		}

		var spec toPolarSpec
		if fftSize == classify {
			spec = toPolarSpec{
				magFrom:    0,
				magCount:   classify/2 + 1,
				polarFrom:  b.B0Min,
				polarCount: b.B1Max - b.B0Min + 1,
			}
		} else {
			spec = toPolarSpec{
				magFrom:    b.B0Min,
				magCount:   b.B1Max - b.B0Min + 1,
				polarFrom:  b.B0Min,
				polarCount: b.B1Max - b.B0Min + 1,
			}
		}

		convertToPolar(scale.mag, scale.phase, scale.real, scale.imag, spec)

		magRange := scale.mag[spec.magFrom : spec.magFrom+spec.magCount]
		vecmath.ScaleBlock(magRange, magRange, 1.0/float64(fftSize))
	}

	if s.currentOptions()&OptionFormantPreserved != 0 {
		s.analyseFormant(c)
		s.adjustFormant(c)
	}

	// Rotate classification and segmentation history, then derive the
	// guidance for this frame.
	copy(cd.classification, cd.nextClassification)
	cd.classifier.Classify(readahead.mag, cd.nextClassification)

	cd.prevSegmentation = cd.segmentation
	cd.segmentation = cd.nextSegmentation
	cd.nextSegmentation = cd.segmenter.Segment(cd.nextClassification)

	ratio := s.effectiveRatio()
	if math.Abs(ratio-1.0) < unityEpsilon {
		s.unityCount++
	} else {
		s.unityCount = 0
	}

	meanMag := 0.0
	for i := 1; i <= classify/2; i++ {
		meanMag += classifyScale.mag[i]
	}
	meanMag /= float64(classify / 2)

	s.guide.UpdateGuidance(ratio,
		prevOuthop,
		classifyScale.mag,
		classifyScale.prevMag,
		readahead.mag,
		cd.segmentation,
		cd.prevSegmentation,
		cd.nextSegmentation,
		meanMag,
		s.unityCount,
		s.isRealTime(),
		s.currentOptions()&OptionChannelsTogether != 0,
		&cd.guidance)
}

// analyseFormant estimates the spectral envelope of the classification
// scale by low-time liftering of the real cepstrum.
func (s *Stretcher) analyseFormant(c int) {
	cd := s.channels[c]
	f := cd.formant

	fftSize := f.fftSize
	binCount := fftSize/2 + 1

	scale := cd.scales[fftSize]
	sd := s.scales[fftSize]

	if err := sd.fft.InverseCepstral(scale.mag, f.cepstra); err != nil {
		s.log.Error("stretch: cepstral transform failed", "error", err)
		return
	}

	cutoff := int(math.Floor(s.params.SampleRate / formantLifterDivisor))
	if cutoff < 1 {
		cutoff = 1
	}

	// Endpoint half-weighting preserves the even-symmetry boundary of
	// the real cepstrum; when cutoff is 1 both halvings fall on ceps[0].
	f.cepstra[0] /= 2.0
	f.cepstra[cutoff-1] /= 2.0
	for i := cutoff; i < fftSize; i++ {
		f.cepstra[i] = 0.0
	}
	vecmath.ScaleBlock(f.cepstra[:cutoff], f.cepstra[:cutoff], 1.0/float64(fftSize))

	if err := sd.fft.Forward(f.cepstra, f.envelope, f.spare); err != nil {
		s.log.Error("stretch: envelope transform failed", "error", err)
		return
	}

	for i := 0; i < binCount; i++ {
		e := math.Exp(f.envelope[i])
		e *= e
		if e > formantEnvelopeCeil {
			e = formantEnvelopeCeil
		}
		f.envelope[i] = e
	}
}

// adjustFormant rescales magnitudes at every scale so that the spectral
// envelope stays put while the partials underneath it move.
func (s *Stretcher) adjustFormant(c int) {
	cd := s.channels[c]

	for _, fftSize := range s.scaleSizes {
		scale := cd.scales[fftSize]

		highBin := int(math.Floor(float64(fftSize) * formantTopFrequency / s.params.SampleRate))
		targetFactor := float64(cd.formant.fftSize) / float64(fftSize)

		formantScale := s.formantScale.Load()
		if formantScale == 0.0 {
			formantScale = 1.0 / s.pitchScale.Load()
		}
		sourceFactor := targetFactor / formantScale

		b := s.config.BandLimitsFor(fftSize)
		if b == nil {
			continue
		}

		for i := b.B0Min; i < b.B1Max && i < highBin; i++ {
			source := cd.formant.envelopeAt(float64(i) * sourceFactor)
			target := cd.formant.envelopeAt(float64(i) * targetFactor)
			if target <= 0.0 {
				continue
			}
			ratio := source / target
			if ratio < 1.0/formantMaxRatio {
				ratio = 1.0 / formantMaxRatio
			}
			if ratio > formantMaxRatio {
				ratio = formantMaxRatio
			}
			scale.mag[i] *= ratio
		}
	}
}

// adjustPreKick defers magnitude growth in the kick band by one hop:
// ahead of a detected onset the gain increment is withheld, and it is
// restored in full on the onset frame, sharpening the transient.
func (s *Stretcher) adjustPreKick(c int) {
	cd := s.channels[c]
	if len(cd.guidance.FFTBands) == 0 {
		return
	}
	fftSize := cd.guidance.FFTBands[0].FFTSize
	scale := cd.scales[fftSize]

	// Both branches read the band from the pre-kick guidance: the
	// window that masked the gain is the window that must release it.
	from := guide.BinForFrequency(cd.guidance.PreKick.F0, fftSize, s.params.SampleRate)
	to := guide.BinForFrequency(cd.guidance.PreKick.F1, fftSize, s.params.SampleRate)
	if to >= scale.bufSize {
		to = scale.bufSize - 1
	}

	if cd.guidance.PreKick.Present {
		for i := from; i <= to; i++ {
			diff := scale.mag[i] - scale.prevMag[i]
			if diff > 0.0 {
				scale.pendingKick[i] = diff
				scale.mag[i] -= diff
			}
		}
	} else if cd.guidance.Kick.Present {
		for i := from; i <= to; i++ {
			scale.mag[i] += scale.pendingKick[i]
			scale.pendingKick[i] = 0.0
		}
	}
}
