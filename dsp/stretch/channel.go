package stretch

import (
	"math"

	"github.com/cwbudde/algo-stretch/dsp/buffer"
	"github.com/cwbudde/algo-stretch/dsp/stretch/guide"
)

// channelScale is the mutable per-channel state of one FFT scale.
type channelScale struct {
	fftSize int
	bufSize int // fftSize/2 + 1

	timeDomain    []float64 // fftSize
	real          []float64 // bufSize
	imag          []float64 // bufSize
	mag           []float64 // bufSize
	phase         []float64 // bufSize
	advancedPhase []float64 // bufSize
	prevMag       []float64 // bufSize
	pendingKick   []float64 // bufSize

	// accumulator is the overlap-add target, always sized to the
	// longest FFT so mixing across scales is a plain sum. Positions at
	// or beyond accumulatorFill are zero.
	accumulator     []float64
	accumulatorFill int
}

func newChannelScale(fftSize, longest int) *channelScale {
	bufSize := fftSize/2 + 1
	return &channelScale{
		fftSize:       fftSize,
		bufSize:       bufSize,
		timeDomain:    make([]float64, fftSize),
		real:          make([]float64, bufSize),
		imag:          make([]float64, bufSize),
		mag:           make([]float64, bufSize),
		phase:         make([]float64, bufSize),
		advancedPhase: make([]float64, bufSize),
		prevMag:       make([]float64, bufSize),
		pendingKick:   make([]float64, bufSize),
		accumulator:   make([]float64, longest),
	}
}

func (cs *channelScale) reset() {
	zero(cs.timeDomain)
	zero(cs.real)
	zero(cs.imag)
	zero(cs.mag)
	zero(cs.phase)
	zero(cs.advancedPhase)
	zero(cs.prevMag)
	zero(cs.pendingKick)
	zero(cs.accumulator)
	cs.accumulatorFill = 0
}

// readaheadData carries the one-hop-ahead analysis of the
// classification scale.
type readaheadData struct {
	timeDomain []float64
	mag        []float64
	phase      []float64
}

// formantData is the cepstral workspace for formant preservation.
type formantData struct {
	fftSize  int
	cepstra  []float64
	envelope []float64
	spare    []float64
}

func newFormantData(fftSize int) *formantData {
	return &formantData{
		fftSize:  fftSize,
		cepstra:  make([]float64, fftSize),
		envelope: make([]float64, fftSize/2+1),
		spare:    make([]float64, fftSize/2+1),
	}
}

// envelopeAt samples the spectral envelope at a fractional bin with
// linear interpolation.
func (f *formantData) envelopeAt(x float64) float64 {
	if x < 0 {
		return 0
	}
	b0 := int(math.Floor(x))
	if b0 >= len(f.envelope) {
		return 0
	}
	b1 := b0 + 1
	if b1 >= len(f.envelope) {
		return f.envelope[b0]
	}
	frac := x - float64(b0)
	return f.envelope[b0]*(1-frac) + f.envelope[b1]*frac
}

func (f *formantData) reset() {
	zero(f.cepstra)
	zero(f.envelope)
	zero(f.spare)
}

// channelData is all mutable state owned by one audio channel.
type channelData struct {
	inbuf  *buffer.RingBuffer
	outbuf *buffer.RingBuffer

	scales map[int]*channelScale

	readahead     readaheadData
	haveReadahead bool

	classifier *guide.Classifier
	segmenter  *guide.Segmenter

	classification     []guide.BinClass
	nextClassification []guide.BinClass

	segmentation     guide.Segmentation
	prevSegmentation guide.Segmentation
	nextSegmentation guide.Segmentation

	guidance guide.Guidance

	formant *formantData

	mixdown   []float64
	resampled []float64
}

func newChannelData(
	segParams guide.SegmenterParameters,
	classParams guide.ClassifierParameters,
	scaleSizes []int,
	longest, classify, inRingSize, outRingSize int,
) *channelData {
	cd := &channelData{
		inbuf:  buffer.NewRingBuffer(inRingSize),
		outbuf: buffer.NewRingBuffer(outRingSize),
		scales: make(map[int]*channelScale, len(scaleSizes)),
		readahead: readaheadData{
			timeDomain: make([]float64, classify),
			mag:        make([]float64, classify/2+1),
			phase:      make([]float64, classify/2+1),
		},
		classifier:         guide.NewClassifier(classParams),
		segmenter:          guide.NewSegmenter(segParams),
		classification:     make([]guide.BinClass, classParams.BinCount),
		nextClassification: make([]guide.BinClass, classParams.BinCount),
		formant:            newFormantData(classify),
		mixdown:            make([]float64, longest),
		resampled:          make([]float64, longest*4),
	}

	for _, fftSize := range scaleSizes {
		cd.scales[fftSize] = newChannelScale(fftSize, longest)
	}

	guide.InitGuidance(&cd.guidance)

	return cd
}

func (cd *channelData) reset() {
	cd.inbuf.Reset()
	cd.outbuf.Reset()

	for _, cs := range cd.scales {
		cs.reset()
	}

	zero(cd.readahead.timeDomain)
	zero(cd.readahead.mag)
	zero(cd.readahead.phase)
	cd.haveReadahead = false

	cd.classifier.Reset()
	for i := range cd.classification {
		cd.classification[i] = guide.ClassResidual
		cd.nextClassification[i] = guide.ClassResidual
	}

	cd.segmentation = guide.Segmentation{}
	cd.prevSegmentation = guide.Segmentation{}
	cd.nextSegmentation = guide.Segmentation{}

	cd.guidance.FFTBands = cd.guidance.FFTBands[:0]
	cd.guidance.Kick = guide.KickGuidance{}
	cd.guidance.PreKick = guide.KickGuidance{}
	cd.guidance.PhaseReset = false
	cd.guidance.ChannelLock = false

	cd.formant.reset()

	zero(cd.mixdown)
	zero(cd.resampled)
}

// channelAssembly gathers per-channel slices so that the cross-channel
// collaborators (phase advance, resampler) can be called once per
// frame. All slots are preallocated; the audio path only overwrites
// them.
type channelAssembly struct {
	mag       [][]float64
	phase     [][]float64
	prevMag   [][]float64
	outPhase  [][]float64
	guidance  []*guide.Guidance
	mixdown   [][]float64
	resampled [][]float64
}

func newChannelAssembly(channels int) channelAssembly {
	return channelAssembly{
		mag:       make([][]float64, channels),
		phase:     make([][]float64, channels),
		prevMag:   make([][]float64, channels),
		outPhase:  make([][]float64, channels),
		guidance:  make([]*guide.Guidance, channels),
		mixdown:   make([][]float64, channels),
		resampled: make([][]float64, channels),
	}
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
