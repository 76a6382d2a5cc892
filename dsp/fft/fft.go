package fft

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

const logFloor = 1e-20

// Transform wraps a fixed-size real FFT for one STFT scale.
//
// The forward transform is unscaled and the inverse transform is
// unnormalized (a forward/inverse round trip gains a factor of Size()).
// Callers compensate by scaling magnitudes by 1/Size() during analysis,
// which keeps the scaling convention in one place across the pipeline.
//
// A Transform allocates all working storage at construction and is
// deterministic; it is not safe for concurrent use.
type Transform struct {
	size int
	half int
	plan *algofft.Plan[complex128]

	work []complex128
	out  []complex128
}

// New creates a transform for the given FFT size, which must be a
// power of two.
func New(size int) (*Transform, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("fft: size must be a power of two >= 2: %d", size)
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("fft: failed to create plan for size %d: %w", size, err)
	}

	return &Transform{
		size: size,
		half: size / 2,
		plan: plan,
		work: make([]complex128, size),
		out:  make([]complex128, size),
	}, nil
}

// Size returns the FFT size.
func (t *Transform) Size() int {
	return t.size
}

// HalfSize returns Size()/2 + 1, the number of distinct real-input bins.
func (t *Transform) HalfSize() int {
	return t.half + 1
}

// Forward transforms time (length Size()) into re and im
// (length HalfSize() each).
func (t *Transform) Forward(time, re, im []float64) error {
	for i := 0; i < t.size; i++ {
		t.work[i] = complex(time[i], 0)
	}

	err := t.plan.Forward(t.out, t.work)
	if err != nil {
		return fmt.Errorf("fft: forward failed: %w", err)
	}

	for i := 0; i <= t.half; i++ {
		re[i] = real(t.out[i])
		im[i] = imag(t.out[i])
	}

	return nil
}

// Inverse transforms re and im (length HalfSize()) into time (length
// Size()). The result is unnormalized: Inverse(Forward(x)) == x * Size().
func (t *Transform) Inverse(re, im []float64, time []float64) error {
	t.work[0] = complex(re[0], 0)
	t.work[t.half] = complex(re[t.half], 0)
	for i := 1; i < t.half; i++ {
		t.work[i] = complex(re[i], im[i])
		t.work[t.size-i] = complex(re[i], -im[i])
	}

	err := t.plan.Inverse(t.out, t.work)
	if err != nil {
		return fmt.Errorf("fft: inverse failed: %w", err)
	}

	n := float64(t.size)
	for i := 0; i < t.size; i++ {
		time[i] = real(t.out[i]) * n
	}

	return nil
}

// InverseCepstral transforms magnitudes (length HalfSize()) into an
// unnormalized real cepstrum (length Size()) by inverse-transforming
// the log magnitude spectrum. Zero magnitudes are floored to keep the
// logarithm finite.
func (t *Transform) InverseCepstral(mag []float64, ceps []float64) error {
	t.work[0] = complex(math.Log(mag[0]+logFloor), 0)
	t.work[t.half] = complex(math.Log(mag[t.half]+logFloor), 0)
	for i := 1; i < t.half; i++ {
		lm := complex(math.Log(mag[i]+logFloor), 0)
		t.work[i] = lm
		t.work[t.size-i] = lm
	}

	err := t.plan.Inverse(t.out, t.work)
	if err != nil {
		return fmt.Errorf("fft: inverse cepstral failed: %w", err)
	}

	n := float64(t.size)
	for i := 0; i < t.size; i++ {
		ceps[i] = real(t.out[i]) * n
	}

	return nil
}
