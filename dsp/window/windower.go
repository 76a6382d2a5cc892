package window

import (
	"github.com/cwbudde/algo-vecmath"
)

// Windower is a precomputed window applied repeatedly to frames of a
// fixed size. It is immutable after construction and safe for shared
// read-only use across channels.
type Windower struct {
	typ    Type
	coeffs []float64
}

// NewWindower precomputes a periodic window of the given type and length.
func NewWindower(t Type, length int, opts ...Option) *Windower {
	return &Windower{
		typ:    t,
		coeffs: Generate(t, length, append(opts, WithPeriodic())...),
	}
}

// Size returns the window length.
func (w *Windower) Size() int {
	return len(w.coeffs)
}

// Value returns the coefficient at index i.
func (w *Windower) Value(i int) float64 {
	return w.coeffs[i]
}

// Cut writes the windowed copy of src into dst. Both must be at least
// Size() long; only the first Size() samples are touched.
func (w *Windower) Cut(src, dst []float64) {
	n := len(w.coeffs)
	vecmath.MulBlock(dst[:n], src[:n], w.coeffs)
}

// CutInPlace windows buf in place.
func (w *Windower) CutInPlace(buf []float64) {
	vecmath.MulBlockInPlace(buf[:len(w.coeffs)], w.coeffs)
}

// CutAndAdd accumulates the windowed copy of src into dst.
func (w *Windower) CutAndAdd(src, dst []float64) {
	for i, c := range w.coeffs {
		dst[i] += src[i] * c
	}
}
