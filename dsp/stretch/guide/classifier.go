package guide

// BinClass labels one spectral bin.
type BinClass uint8

const (
	ClassResidual BinClass = iota
	ClassHarmonic
	ClassPercussive
)

// ClassifierParameters configures a Classifier.
type ClassifierParameters struct {
	BinCount int
	// HorizontalFilterLength is the number of past frames in the
	// along-time median.
	HorizontalFilterLength int
	// HorizontalFilterLag is the warm-up in frames before any bin is
	// classified as other than residual.
	HorizontalFilterLag int
	// VerticalFilterLength is the number of neighbouring bins in the
	// along-frequency median.
	VerticalFilterLength int
	HarmonicThreshold    float64
	PercussiveThreshold  float64
}

// DefaultClassifierParameters returns the parameters the stretcher uses.
func DefaultClassifierParameters(binCount int) ClassifierParameters {
	return ClassifierParameters{
		BinCount:               binCount,
		HorizontalFilterLength: 9,
		HorizontalFilterLag:    1,
		VerticalFilterLength:   10,
		HarmonicThreshold:      2.0,
		PercussiveThreshold:    2.0,
	}
}

// Classifier labels each spectral bin as percussive, harmonic or
// residual by comparing a median along time against a median along
// frequency. Harmonic partials persist across frames, percussive hits
// spread across bins.
//
// All storage is allocated at construction; Classify performs no
// allocation.
type Classifier struct {
	params  ClassifierParameters
	history [][]float64
	filled  int
	pos     int
	scratch []float64
}

// NewClassifier creates a classifier.
func NewClassifier(params ClassifierParameters) *Classifier {
	history := make([][]float64, params.HorizontalFilterLength)
	for i := range history {
		history[i] = make([]float64, params.BinCount)
	}

	scratchLen := params.HorizontalFilterLength
	if params.VerticalFilterLength > scratchLen {
		scratchLen = params.VerticalFilterLength
	}

	return &Classifier{
		params:  params,
		history: history,
		scratch: make([]float64, scratchLen),
	}
}

// Reset discards the frame history.
func (c *Classifier) Reset() {
	c.filled = 0
	c.pos = 0
}

// Classify labels the first BinCount bins of mag into out. The
// magnitude scale is irrelevant as only ratios are compared.
func (c *Classifier) Classify(mag []float64, out []BinClass) {
	p := &c.params

	copy(c.history[c.pos], mag[:p.BinCount])
	c.pos = (c.pos + 1) % len(c.history)
	if c.filled < len(c.history) {
		c.filled++
	}

	if c.filled <= p.HorizontalFilterLag {
		for i := 0; i < p.BinCount; i++ {
			out[i] = ClassResidual
		}
		return
	}

	half := p.VerticalFilterLength / 2

	for i := 0; i < p.BinCount; i++ {
		h := c.horizontalMedian(i)

		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + p.VerticalFilterLength - half - 1
		if hi > p.BinCount-1 {
			hi = p.BinCount - 1
		}
		v := c.verticalMedian(mag, lo, hi)

		switch {
		case v > p.PercussiveThreshold*h:
			out[i] = ClassPercussive
		case h > p.HarmonicThreshold*v:
			out[i] = ClassHarmonic
		default:
			out[i] = ClassResidual
		}
	}
}

func (c *Classifier) horizontalMedian(bin int) float64 {
	s := c.scratch[:c.filled]
	for f := 0; f < c.filled; f++ {
		s[f] = c.history[f][bin]
	}
	return medianInPlace(s)
}

func (c *Classifier) verticalMedian(mag []float64, lo, hi int) float64 {
	s := c.scratch[:hi-lo+1]
	copy(s, mag[lo:hi+1])
	return medianInPlace(s)
}

// medianInPlace sorts s (insertion sort; lengths here never exceed the
// filter lengths) and returns its median.
func medianInPlace(s []float64) float64 {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}

	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return 0.5 * (s[mid-1] + s[mid])
}
