package guide

// Segmentation partitions the spectrum into three regions, in Hz:
// predominantly percussive content below PercussiveBelow, predominantly
// percussive again above PercussiveAbove, and no harmonic content above
// ResidualAbove. Regions that do not exist sit at the Nyquist frequency
// (for the upper bounds) or at zero (for the lower one).
type Segmentation struct {
	PercussiveBelow float64
	PercussiveAbove float64
	ResidualAbove   float64
}

// SegmenterParameters configures a Segmenter.
type SegmenterParameters struct {
	FFTSize      int
	BinCount     int
	SampleRate   float64
	FilterLength int
}

// Segmenter converts a per-bin classification into band boundaries,
// smoothing over FilterLength bins so isolated misclassified bins do
// not fracture the segmentation.
type Segmenter struct {
	params SegmenterParameters
	frac   []float64
}

// NewSegmenter creates a segmenter.
func NewSegmenter(params SegmenterParameters) *Segmenter {
	if params.FilterLength < 1 {
		params.FilterLength = 1
	}
	return &Segmenter{
		params: params,
		frac:   make([]float64, params.BinCount),
	}
}

// Segment derives band boundaries from the classification vector.
func (s *Segmenter) Segment(classes []BinClass) Segmentation {
	p := &s.params
	nyquist := p.SampleRate / 2

	if p.BinCount == 0 {
		return Segmentation{PercussiveAbove: nyquist, ResidualAbove: nyquist}
	}

	s.smoothPercussive(classes)

	seg := Segmentation{
		PercussiveBelow: 0,
		PercussiveAbove: nyquist,
		ResidualAbove:   nyquist,
	}

	// Rising scan: the percussive floor ends at the first bin whose
	// neighbourhood is mostly non-percussive.
	b := 0
	for b < p.BinCount && s.frac[b] >= 0.5 {
		b++
	}
	seg.PercussiveBelow = FrequencyForBin(b, p.FFTSize, p.SampleRate)

	// Falling scan from the top for the percussive ceiling.
	t := p.BinCount - 1
	for t > b && s.frac[t] >= 0.5 {
		t--
	}
	if t < p.BinCount-1 {
		seg.PercussiveAbove = FrequencyForBin(t+1, p.FFTSize, p.SampleRate)
	}

	// Highest harmonic content bounds the residual region.
	r := p.BinCount - 1
	for r >= 0 && classes[r] != ClassHarmonic {
		r--
	}
	if r < p.BinCount-1 {
		seg.ResidualAbove = FrequencyForBin(r+1, p.FFTSize, p.SampleRate)
	}

	return seg
}

// smoothPercussive fills s.frac with the fraction of percussive bins in
// a FilterLength-wide neighbourhood of each bin.
func (s *Segmenter) smoothPercussive(classes []BinClass) {
	p := &s.params
	half := p.FilterLength / 2

	count := 0
	lo, hi := 0, -1 // current window [lo, hi]

	for i := 0; i < p.BinCount; i++ {
		wantLo := i - half
		if wantLo < 0 {
			wantLo = 0
		}
		wantHi := i + p.FilterLength - half - 1
		if wantHi > p.BinCount-1 {
			wantHi = p.BinCount - 1
		}

		for hi < wantHi {
			hi++
			if classes[hi] == ClassPercussive {
				count++
			}
		}
		for lo < wantLo {
			if classes[lo] == ClassPercussive {
				count--
			}
			lo++
		}

		s.frac[i] = float64(count) / float64(wantHi-wantLo+1)
	}
}
