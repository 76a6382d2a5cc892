package stretch

import (
	"math"
)

// Study accumulates the duration of a first offline pass over the
// input. No DSP runs; the duration fixes the output target before
// processing starts.
func (s *Stretcher) Study(input [][]float64, samples int, final bool) {
	if s.isRealTime() {
		s.log.Warn("stretch: study is not meaningful in realtime mode")
		return
	}
	if s.mode == modeProcessing || s.mode == modeFinished {
		s.log.Warn("stretch: cannot study after processing")
		return
	}

	if s.mode == modeJustCreated {
		s.studyInputDuration = 0
	}

	s.mode = modeStudying
	s.studyInputDuration += samples

	_ = input
	_ = final
}

// SamplesRequired returns how many more input samples are needed before
// output can be produced; 0 whenever output is already available.
func (s *Stretcher) SamplesRequired() int {
	if s.Available() != 0 {
		return 0
	}
	longest := s.config.LongestFFTSize
	rs := s.channels[0].inbuf.ReadSpace()
	if rs < longest {
		return longest - rs
	}
	return 0
}

// SetMaxProcessSize grows the input ring buffers so that a single
// Process call of up to n samples never resizes on the audio path.
func (s *Stretcher) SetMaxProcessSize(n int) {
	oldSize := s.channels[0].inbuf.Size()
	newSize := s.config.LongestFFTSize + n

	if newSize <= oldSize {
		s.log.Debug("stretch: setMaxProcessSize: nothing to be done",
			"newSize", newSize, "oldSize", oldSize)
		return
	}

	s.log.Debug("stretch: setMaxProcessSize: resizing", "from", oldSize, "to", newSize)
	for _, cd := range s.channels {
		cd.inbuf = cd.inbuf.Resized(newSize)
	}
}

// Process feeds samples per channel into the stretcher and runs the
// pipeline as far as it can. final marks the end of the input stream.
func (s *Stretcher) Process(input [][]float64, samples int, final bool) {
	if s.mode == modeFinished {
		s.log.Warn("stretch: cannot process again after the final chunk")
		return
	}

	if !s.isRealTime() {
		s.prepareOfflineProcess()
	}

	if final {
		// "Finished" and "draining, not yet fully delivered" are the
		// same state internally; only Available distinguishes them.
		s.mode = modeFinished
	} else {
		s.mode = modeProcessing
	}

	ws := s.channels[0].inbuf.WriteSpace()
	if samples > ws {
		s.log.Warn("stretch: forced to increase input buffer size; "+
			"call SetMaxProcessSize before going live or retrieve more often",
			"writeSpace", ws, "samples", samples)
		newSize := s.channels[0].inbuf.Size() - ws + samples
		for _, cd := range s.channels {
			cd.inbuf = cd.inbuf.Resized(newSize)
		}
	}

	for c, cd := range s.channels {
		cd.inbuf.Write(input[c], samples)
	}

	s.consume()
}

// prepareOfflineProcess handles the bookkeeping of the first offline
// Process calls: the output target, pending key frames, lazy resampler
// creation and the half-frame prefill.
func (s *Stretcher) prepareOfflineProcess() {
	if s.mode == modeStudying {
		s.totalTargetDuration =
			int(math.Round(float64(s.studyInputDuration) * s.timeRatio.Load()))
		s.log.Debug("stretch: study duration and target duration",
			"study", s.studyInputDuration, "target", s.totalTargetDuration)
	} else if s.mode == modeJustCreated && s.suppliedInputDuration != 0 {
		s.totalTargetDuration =
			int(math.Round(float64(s.suppliedInputDuration) * s.timeRatio.Load()))
		s.log.Debug("stretch: supplied duration and target duration",
			"supplied", s.suppliedInputDuration, "target", s.totalTargetDuration)
	}

	// Checked on every process round. This must follow the target
	// calculation above, which uses the overall time ratio, and
	// precede any other use of the ratio.
	if len(s.keyFrameMap) != 0 {
		s.updateRatioFromMap()
	}

	if s.mode == modeJustCreated || s.mode == modeStudying {
		if s.pitchScale.Load() != 1.0 && s.resampler == nil {
			if err := s.createResampler(); err != nil {
				s.log.Warn("stretch: resampler creation failed; pitch shift disabled",
					"error", err)
			}
		}

		// Pad to half the longest frame. Realtime mode skips this: a
		// swoosh at the start beats extra latency, and gaps would
		// appear whenever the ratio changed.
		pad := s.config.LongestFFTSize / 2
		s.log.Debug("stretch: offline mode prefill", "pad", pad)
		for _, cd := range s.channels {
			cd.inbuf.Zero(pad)
		}

		// By the time this is skipped the output may have been
		// resampled as well as stretched.
		s.startSkip = int(math.Round(float64(pad) / s.pitchScale.Load()))
		s.log.Debug("stretch: start skip", "samples", s.startSkip)
	}
}

// Available returns the number of output samples ready for retrieval,
// or -1 once the stream is finished and fully drained.
func (s *Stretcher) Available() int {
	av := s.channels[0].outbuf.ReadSpace()
	if av == 0 && s.mode == modeFinished {
		return -1
	}
	return av
}

// Retrieve reads up to n processed samples per channel into output and
// returns the minimum count successfully read across channels.
func (s *Stretcher) Retrieve(output [][]float64, n int) int {
	got := n
	for c, cd := range s.channels {
		gotHere := cd.outbuf.Read(output[c], got)
		if gotHere < got {
			if c > 0 {
				s.log.Warn("stretch: channel imbalance detected in retrieve",
					"channel", c, "expected", got, "got", gotHere)
			}
			if gotHere < 0 {
				gotHere = 0
			}
			got = gotHere
		}
	}
	return got
}

// consume is the STFT driver: it runs analysis, phase advance,
// resynthesis, resampling and emission frame by frame for as long as
// there is room in the output ring buffer and material to process.
func (s *Stretcher) consume() {
	longest := s.config.LongestFFTSize
	channels := s.params.Channels
	inhop := int(s.inhop.Load())

	effectivePitchRatio := 1.0 / s.pitchScale.Load()
	if s.resampler != nil {
		effectivePitchRatio = s.resampler.EffectiveRatio(effectivePitchRatio)
	}

	outhop := s.calculator.CalculateSingle(s.timeRatio.Load(),
		effectivePitchRatio, 1.0, inhop, longest, longest, true)

	if outhop < 1 {
		s.log.Warn("stretch: outhop clamped", "outhop", outhop)
		outhop = 1
	}
	if outhop > longest {
		s.log.Warn("stretch: outhop clamped to frame size", "outhop", outhop)
		outhop = longest
	}

	// inhop is the distance the input advances after the current frame
	// and outhop the distance the output advances after emitting it;
	// prevInhop/prevOuthop are the values in force when the previous
	// frame was processed. Phase adjustment works on the distances
	// advanced since the previous frame, so it uses the prev values.

	if inhop != s.prevInhop {
		s.log.Debug("stretch: change in inhop", "from", s.prevInhop, "to", inhop)
	}
	if outhop != s.prevOuthop {
		s.log.Debug("stretch: change in outhop", "from", s.prevOuthop, "to", outhop)
	}

	cd0 := s.channels[0]

	for cd0.outbuf.WriteSpace() >= outhop {
		readSpace := cd0.inbuf.ReadSpace()
		if readSpace < longest {
			if s.mode == modeFinished {
				if readSpace == 0 {
					fill := cd0.scales[longest].accumulatorFill
					if fill == 0 {
						break
					}
					s.log.Debug("stretch: input exhausted, draining accumulator",
						"remaining", fill)
				}
			} else {
				// Await more input.
				break
			}
		}

		for c := 0; c < channels; c++ {
			s.analyseChannel(c, inhop, s.prevInhop, s.prevOuthop)
		}

		// Phase update, synchronised across all channels.
		for _, fftSize := range s.scaleSizes {
			for c := 0; c < channels; c++ {
				cd := s.channels[c]
				scale := cd.scales[fftSize]
				s.assembly.mag[c] = scale.mag
				s.assembly.phase[c] = scale.phase
				s.assembly.prevMag[c] = scale.prevMag
				s.assembly.guidance[c] = &cd.guidance
				s.assembly.outPhase[c] = scale.advancedPhase
			}
			s.scales[fftSize].guided.Advance(
				s.assembly.outPhase,
				s.assembly.mag,
				s.assembly.phase,
				s.assembly.prevMag,
				&s.config,
				s.assembly.guidance,
				s.prevInhop,
				s.prevOuthop)
		}

		for c := 0; c < channels; c++ {
			s.adjustPreKick(c)
		}

		for c := 0; c < channels; c++ {
			s.synthesiseChannel(c, outhop, readSpace == 0)
		}

		resampling := false
		if s.resampler != nil {
			if s.pitchScale.Load() != 1.0 ||
				s.currentOptions()&OptionPitchHighConsistency != 0 {
				resampling = true
			}
		}

		resampledCount := 0
		if resampling {
			for c := 0; c < channels; c++ {
				cd := s.channels[c]
				s.assembly.mixdown[c] = cd.mixdown
				s.assembly.resampled[c] = cd.resampled
			}
			resampledCount = s.resampler.Resample(
				s.assembly.resampled,
				len(cd0.resampled),
				s.assembly.mixdown,
				outhop,
				1.0/s.pitchScale.Load(),
				s.mode == modeFinished && readSpace < inhop)
		}

		writeCount := outhop
		if resampling {
			writeCount = resampledCount
		}
		if !s.isRealTime() && s.totalTargetDuration > 0 &&
			s.totalOutputDuration+writeCount > s.totalTargetDuration {
			reduced := s.totalTargetDuration - s.totalOutputDuration
			s.log.Debug("stretch: reducing write count to honour target duration",
				"from", writeCount, "to", reduced)
			writeCount = reduced
		}

		advanceCount := inhop
		if advanceCount > readSpace {
			// Expected only while draining.
			if s.mode != modeFinished {
				s.log.Warn("stretch: read space smaller than inhop while not finished",
					"readSpace", readSpace, "inhop", inhop)
			}
			advanceCount = readSpace
		}

		for c := 0; c < channels; c++ {
			cd := s.channels[c]
			if resampling {
				cd.outbuf.Write(cd.resampled, writeCount)
			} else {
				cd.outbuf.Write(cd.mixdown, writeCount)
			}
			cd.inbuf.Skip(advanceCount)
		}

		s.consumedInputDuration += advanceCount
		s.totalOutputDuration += writeCount

		if s.startSkip > 0 {
			rs := cd0.outbuf.ReadSpace()
			toSkip := s.startSkip
			if toSkip > rs {
				toSkip = rs
			}
			for c := 0; c < channels; c++ {
				s.channels[c].outbuf.Skip(toSkip)
			}
			s.startSkip -= toSkip
			// Tracks the post-trim read space while the skip is in
			// progress, not the cumulative count.
			s.totalOutputDuration = rs - toSkip
		}

		s.prevInhop = inhop
		s.prevOuthop = outhop
	}
}
