package stretch

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/cwbudde/algo-stretch/dsp/resample"
	"github.com/cwbudde/algo-stretch/dsp/stretch/guide"
)

// Options select the processing mode of a Stretcher. The formant bits
// may be changed after construction via SetFormantOption; everything
// else is fixed.
type Options uint32

const (
	// OptionProcessRealTime selects streaming operation with a fixed
	// start delay; the default is offline study-then-process operation.
	OptionProcessRealTime Options = 1 << iota
	// OptionFormantPreserved keeps the spectral envelope pinned while
	// pitch moves; the default (OptionFormantShifted) lets it follow.
	OptionFormantPreserved
	// OptionPitchHighQuality selects the best resampler kernel.
	OptionPitchHighQuality
	// OptionPitchHighConsistency keeps the resampler engaged even at a
	// pitch scale of 1.0 so that ratio changes never switch topology.
	OptionPitchHighConsistency
	// OptionChannelsTogether locks phase advance across channels.
	OptionChannelsTogether
)

// OptionFormantShifted is the default formant handling.
const OptionFormantShifted Options = 0

const formantOptionMask = OptionFormantPreserved

// Parameters fixes the construction-time properties of a Stretcher.
type Parameters struct {
	SampleRate float64
	Channels   int
	Options    Options
}

var (
	// ErrInvalidSampleRate indicates a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("stretch: invalid sample rate")
	// ErrInvalidChannelCount indicates a non-positive channel count.
	ErrInvalidChannelCount = errors.New("stretch: invalid channel count")
	// ErrInvalidRatio indicates a non-positive time ratio or pitch scale.
	ErrInvalidRatio = errors.New("stretch: invalid ratio")
)

type processMode int

const (
	modeJustCreated processMode = iota
	modeStudying
	modeProcessing
	modeFinished
)

const (
	minInhop  = 1
	maxInhop  = 1024
	minOuthop = 128
	maxOuthop = 512

	inRingBufferFactor  = 2
	outRingBufferFactor = 16

	maxClassifierFrequency = 16000.0
	unityEpsilon           = 1e-7
)

// atomicFloat64 is a lock-free float64 for the live ratios: the control
// plane stores, the audio plane loads.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

type keyFrame struct {
	in, out int
}

// Stretcher is a realtime-capable audio time stretcher and pitch
// shifter built around a multi-resolution STFT. One instance serves one
// stream; calls into the same instance must not be made concurrently,
// except for the ratio setters, which may be called from a control
// thread while the audio thread runs.
type Stretcher struct {
	params Parameters
	log    *slog.Logger

	timeRatio    atomicFloat64
	pitchScale   atomicFloat64
	formantScale atomicFloat64
	options      atomic.Uint32

	guide      *guide.Guide
	config     guide.Configuration
	calculator *guide.StretchCalculator
	resampler  *resample.Resampler

	channels []*channelData
	scales   map[int]*scaleData
	// scaleSizes fixes the iteration order over the scale maps; Go maps
	// iterate randomly and the pipeline must be deterministic.
	scaleSizes []int
	assembly   channelAssembly

	inhop      atomic.Int32
	prevInhop  int
	prevOuthop int

	unityCount int
	startSkip  int

	studyInputDuration    int
	suppliedInputDuration int
	totalTargetDuration   int
	consumedInputDuration int
	lastKeyFrameSurpassed int
	totalOutputDuration   int

	keyFrameMap []keyFrame

	mode processMode
}

// New creates a stretcher. A nil logger selects slog.Default().
func New(params Parameters, initialTimeRatio, initialPitchScale float64, log *slog.Logger) (*Stretcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if params.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidSampleRate, params.SampleRate)
	}
	if params.Channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, params.Channels)
	}
	if initialTimeRatio <= 0 || initialPitchScale <= 0 {
		return nil, fmt.Errorf("%w: time %f, pitch %f", ErrInvalidRatio,
			initialTimeRatio, initialPitchScale)
	}

	s := &Stretcher{
		params: params,
		log:    log,
		guide:  guide.New(guide.Parameters{SampleRate: params.SampleRate}, log),
		mode:   modeJustCreated,
	}
	s.config = s.guide.Config()
	s.timeRatio.Store(initialTimeRatio)
	s.pitchScale.Store(initialPitchScale)
	s.formantScale.Store(0)
	s.options.Store(uint32(params.Options))

	log.Debug("stretch: creating stretcher",
		"sampleRate", params.SampleRate,
		"channels", params.Channels,
		"timeRatio", initialTimeRatio,
		"pitchScale", initialPitchScale)

	longest := s.config.LongestFFTSize
	classify := s.config.ClassificationFFTSize

	maxCF := maxClassifierFrequency
	if maxCF > params.SampleRate/2 {
		maxCF = params.SampleRate / 2
	}
	classificationBins := int(math.Floor(float64(classify) * maxCF / params.SampleRate))

	segParams := guide.SegmenterParameters{
		FFTSize:      classify,
		BinCount:     classificationBins,
		SampleRate:   params.SampleRate,
		FilterLength: 18,
	}
	classParams := guide.DefaultClassifierParameters(classificationBins)

	s.scaleSizes = make([]int, 0, len(s.config.FFTBandLimits))
	for _, band := range s.config.FFTBandLimits {
		s.scaleSizes = append(s.scaleSizes, band.FFTSize)
	}
	sort.Ints(s.scaleSizes)

	s.scales = make(map[int]*scaleData, len(s.scaleSizes))
	for _, fftSize := range s.scaleSizes {
		sd, err := newScaleData(fftSize, longest, params.SampleRate, params.Channels, log)
		if err != nil {
			return nil, err
		}
		s.scales[fftSize] = sd
	}

	inRingSize := longest * inRingBufferFactor
	outRingSize := longest * outRingBufferFactor

	s.channels = make([]*channelData, params.Channels)
	for c := range s.channels {
		s.channels[c] = newChannelData(segParams, classParams, s.scaleSizes,
			longest, classify, inRingSize, outRingSize)
	}

	s.assembly = newChannelAssembly(params.Channels)

	s.calculator = guide.NewStretchCalculator(
		int(math.Round(params.SampleRate)), 1, false, log)

	if s.isRealTime() {
		// Offline mode defers this: no resampler is wanted at all when
		// the pitch scale stays at 1.0, and it can still change before
		// the first process call.
		if err := s.createResampler(); err != nil {
			return nil, err
		}
	}

	s.calculateHop()

	s.prevInhop = int(s.inhop.Load())
	s.prevOuthop = int(math.Round(float64(s.prevInhop) * s.effectiveRatio()))

	return s, nil
}

func (s *Stretcher) isRealTime() bool {
	return s.currentOptions()&OptionProcessRealTime != 0
}

func (s *Stretcher) currentOptions() Options {
	return Options(s.options.Load())
}

func (s *Stretcher) effectiveRatio() float64 {
	return s.timeRatio.Load() * s.pitchScale.Load()
}

// ChannelCount returns the channel count the stretcher was built for.
func (s *Stretcher) ChannelCount() int {
	return s.params.Channels
}

// TimeRatio returns the current time ratio.
func (s *Stretcher) TimeRatio() float64 {
	return s.timeRatio.Load()
}

// PitchScale returns the current pitch scale.
func (s *Stretcher) PitchScale() float64 {
	return s.pitchScale.Load()
}

// FormantScale returns the current formant scale; 0 means automatic
// (the reciprocal of the pitch scale).
func (s *Stretcher) FormantScale() float64 {
	return s.formantScale.Load()
}

// SetTimeRatio updates the time ratio. In offline mode this is refused
// once studying or processing has begun.
func (s *Stretcher) SetTimeRatio(ratio float64) {
	if !s.isRealTime() && (s.mode == modeStudying || s.mode == modeProcessing) {
		s.log.Warn("stretch: cannot set time ratio while studying or processing in offline mode")
		return
	}
	if ratio == s.timeRatio.Load() {
		return
	}
	s.timeRatio.Store(ratio)
	s.calculateHop()
}

// SetPitchScale updates the pitch scale. In offline mode this is
// refused once studying or processing has begun.
func (s *Stretcher) SetPitchScale(scale float64) {
	if !s.isRealTime() && (s.mode == modeStudying || s.mode == modeProcessing) {
		s.log.Warn("stretch: cannot set pitch scale while studying or processing in offline mode")
		return
	}
	if scale == s.pitchScale.Load() {
		return
	}
	s.pitchScale.Store(scale)
	s.calculateHop()
}

// SetFormantScale updates the formant scale. 0 restores automatic
// formant scaling.
func (s *Stretcher) SetFormantScale(scale float64) {
	if !s.isRealTime() && (s.mode == modeStudying || s.mode == modeProcessing) {
		s.log.Warn("stretch: cannot set formant scale while studying or processing in offline mode")
		return
	}
	s.formantScale.Store(scale)
}

// SetFormantOption replaces the formant handling bits of the options.
func (s *Stretcher) SetFormantOption(options Options) {
	for {
		old := s.options.Load()
		updated := (old &^ uint32(formantOptionMask)) | uint32(options&formantOptionMask)
		if s.options.CompareAndSwap(old, updated) {
			return
		}
	}
}

// SetPitchOption is not supported after construction in this engine;
// the call is dropped with a log message.
func (s *Stretcher) SetPitchOption(Options) {
	s.log.Warn("stretch: pitch option change after construction is not supported")
}

// SetKeyFrameMap installs an input-sample to output-sample key frame
// map. Offline only, and only before processing begins.
func (s *Stretcher) SetKeyFrameMap(mapping map[int]int) {
	if s.isRealTime() {
		s.log.Warn("stretch: cannot specify key frame map in realtime mode")
		return
	}
	if s.mode == modeProcessing || s.mode == modeFinished {
		s.log.Warn("stretch: cannot specify key frame map after process has begun")
		return
	}

	s.keyFrameMap = s.keyFrameMap[:0]
	for in, out := range mapping {
		s.keyFrameMap = append(s.keyFrameMap, keyFrame{in: in, out: out})
	}
	sort.Slice(s.keyFrameMap, func(i, j int) bool {
		return s.keyFrameMap[i].in < s.keyFrameMap[j].in
	})
}

// SetExpectedInputDuration predicts the total input length in samples,
// letting offline processing trim its output to the exact target even
// without a study pass.
func (s *Stretcher) SetExpectedInputDuration(samples int) {
	s.suppliedInputDuration = samples
}

// PreferredStartPad returns the number of silent samples the caller
// should feed before its real input in realtime mode.
func (s *Stretcher) PreferredStartPad() int {
	if !s.isRealTime() {
		return 0
	}
	return s.config.LongestFFTSize / 2
}

// StartDelay returns the number of output samples to discard before the
// output corresponds to the input.
func (s *Stretcher) StartDelay() int {
	if !s.isRealTime() {
		return 0
	}
	factor := 0.5 / s.pitchScale.Load()
	return int(math.Ceil(float64(s.config.LongestFFTSize) * factor))
}

func (s *Stretcher) createResampler() error {
	params := resample.Parameters{
		Quality:           resample.QualityFastestTolerable,
		InitialSampleRate: s.params.SampleRate,
		MaxBufferSize:     s.config.LongestFFTSize,
	}
	if s.currentOptions()&OptionPitchHighQuality != 0 {
		params.Quality = resample.QualityBest
	}

	if s.isRealTime() {
		params.RatioChange = resample.SmoothRatioChange
		if s.currentOptions()&OptionPitchHighConsistency != 0 {
			params.Dynamism = resample.RatioOftenChanging
		} else {
			params.Dynamism = resample.RatioMostlyFixed
		}
	} else {
		params.Dynamism = resample.RatioMostlyFixed
		params.RatioChange = resample.SuddenRatioChange
	}

	r, err := resample.New(params, s.params.Channels)
	if err != nil {
		return fmt.Errorf("stretch: failed to create resampler: %w", err)
	}
	s.resampler = r
	return nil
}

// calculateHop picks the input hop for the current ratios. The output
// hop is aimed at 256 around unity, dropping towards 128 far below and
// rising towards 512 far above: past 256 the guide has to abandon the
// 1024-bin scale, and past 512 the window shapes would no longer
// overlap adequately, so those are the hard edges.
func (s *Stretcher) calculateHop() {
	ratio := s.effectiveRatio()

	proposedOuthop := 256.0
	if ratio > 1.5 {
		proposedOuthop = math.Pow(2.0, 8.0+2.0*math.Log10(ratio-0.5))
	} else if ratio < 1.0 {
		proposedOuthop = math.Pow(2.0, 8.0+2.0*math.Log10(ratio))
	}
	if proposedOuthop > maxOuthop {
		proposedOuthop = maxOuthop
	}
	if proposedOuthop < minOuthop {
		proposedOuthop = minOuthop
	}

	s.log.Debug("stretch: calculateHop", "ratio", ratio, "proposedOuthop", proposedOuthop)

	inhop := proposedOuthop / ratio
	if inhop < minInhop {
		s.log.Warn("stretch: extreme ratio yields ideal inhop < 1, results may be suspect",
			"ratio", ratio, "inhop", inhop)
		inhop = minInhop
	}
	if inhop > maxInhop {
		s.log.Warn("stretch: extreme ratio yields ideal inhop > 1024, results may be suspect",
			"ratio", ratio, "inhop", inhop)
		inhop = maxInhop
	}

	s.inhop.Store(int32(math.Floor(inhop)))
}

// updateRatioFromMap advances the time ratio to the rate implied by the
// next pending key frame once the consumed input duration surpasses it.
func (s *Stretcher) updateRatioFromMap() {
	if len(s.keyFrameMap) == 0 {
		return
	}

	if s.consumedInputDuration == 0 {
		first := s.keyFrameMap[0]
		if first.in > 0 {
			s.timeRatio.Store(float64(first.out) / float64(first.in))
			s.log.Debug("stretch: initial key frame ratio",
				"in", first.in, "out", first.out, "ratio", s.timeRatio.Load())
			s.calculateHop()
		} else {
			// A 0 -> n entry carries no rate of its own; it anchors the
			// following segment.
			s.log.Debug("stretch: ignoring zero-input initial key frame")
		}
		s.lastKeyFrameSurpassed = 0
		return
	}

	i0, ok := s.upperBound(s.lastKeyFrameSurpassed)
	if !ok {
		return
	}

	if s.consumedInputDuration < i0.in {
		return
	}

	s.log.Debug("stretch: input duration surpasses pending key frame",
		"consumed", s.consumedInputDuration, "keyFrame", i0.in)

	keyFrameAtInput := s.studyInputDuration
	keyFrameAtOutput := s.totalTargetDuration
	if i1, ok := s.upperBound(s.consumedInputDuration); ok {
		keyFrameAtInput = i1.in
		keyFrameAtOutput = i1.out
	}

	ratio := 1.0
	if keyFrameAtInput > i0.in {
		toInput := keyFrameAtInput - i0.in
		toOutput := 1
		if keyFrameAtOutput > i0.out {
			toOutput = keyFrameAtOutput - i0.out
		} else {
			s.log.Debug("stretch: previous target key frame overruns next key frame",
				"previous", i0.out, "next", keyFrameAtOutput)
		}
		ratio = float64(toOutput) / float64(toInput)
	} else {
		s.log.Debug("stretch: source key frame overruns following key frame",
			"keyFrame", i0.in, "next", keyFrameAtInput)
	}

	s.log.Debug("stretch: new key frame ratio", "ratio", ratio)

	s.timeRatio.Store(ratio)
	s.calculateHop()

	s.lastKeyFrameSurpassed = i0.in
}

// upperBound returns the first key frame with in > key.
func (s *Stretcher) upperBound(key int) (keyFrame, bool) {
	i := sort.Search(len(s.keyFrameMap), func(i int) bool {
		return s.keyFrameMap[i].in > key
	})
	if i == len(s.keyFrameMap) {
		return keyFrame{}, false
	}
	return s.keyFrameMap[i], true
}

// Reset returns the stretcher to its just-created state. Two stretchers
// given identical input after identical construction or Reset produce
// identical output.
func (s *Stretcher) Reset() {
	s.calculator.Reset()
	if s.resampler != nil {
		s.resampler.Reset()
	}

	for _, fftSize := range s.scaleSizes {
		s.scales[fftSize].guided.Reset()
	}

	for _, cd := range s.channels {
		cd.reset()
	}

	s.calculateHop()
	s.prevInhop = int(s.inhop.Load())
	s.prevOuthop = int(math.Round(float64(s.prevInhop) * s.effectiveRatio()))

	s.unityCount = 0
	s.startSkip = 0
	s.studyInputDuration = 0
	s.suppliedInputDuration = 0
	s.totalTargetDuration = 0
	s.consumedInputDuration = 0
	s.lastKeyFrameSurpassed = 0
	s.totalOutputDuration = 0
	s.keyFrameMap = s.keyFrameMap[:0]

	s.mode = modeJustCreated
}
