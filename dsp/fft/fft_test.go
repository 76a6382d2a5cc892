package fft

import (
	"math"
	"testing"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	for _, size := range []int{0, 1, 3, 100, -8} {
		if _, err := New(size); err == nil {
			t.Fatalf("size %d: expected error", size)
		}
	}
}

func TestForwardInverseRoundTrip(t *testing.T) {
	const n = 256
	tr, err := New(n)
	if err != nil {
		t.Fatal(err)
	}

	in := make([]float64, n)
	for i := range in {
		in[i] = math.Sin(2*math.Pi*13*float64(i)/n) + 0.25*math.Cos(2*math.Pi*40*float64(i)/n)
	}

	re := make([]float64, tr.HalfSize())
	im := make([]float64, tr.HalfSize())
	out := make([]float64, n)

	if err := tr.Forward(in, re, im); err != nil {
		t.Fatal(err)
	}
	if err := tr.Inverse(re, im, out); err != nil {
		t.Fatal(err)
	}

	// The inverse is unnormalized, so the round trip gains a factor n.
	for i := range in {
		got := out[i] / n
		if math.Abs(got-in[i]) > 1e-9 {
			t.Fatalf("index %d: got %v, want %v", i, got, in[i])
		}
	}
}

func TestForwardSineBin(t *testing.T) {
	const n = 512
	tr, err := New(n)
	if err != nil {
		t.Fatal(err)
	}

	const bin = 20
	in := make([]float64, n)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * bin * float64(i) / n)
	}

	re := make([]float64, tr.HalfSize())
	im := make([]float64, tr.HalfSize())
	if err := tr.Forward(in, re, im); err != nil {
		t.Fatal(err)
	}

	peak := 0
	peakMag := 0.0
	for i := 0; i < tr.HalfSize(); i++ {
		m := math.Hypot(re[i], im[i])
		if m > peakMag {
			peakMag = m
			peak = i
		}
	}
	if peak != bin {
		t.Fatalf("peak at bin %d, want %d", peak, bin)
	}
	// A unit sine concentrates magnitude n/2 in its bin.
	if math.Abs(peakMag-n/2) > 1e-6 {
		t.Fatalf("peak magnitude = %v, want %v", peakMag, float64(n)/2)
	}
}

func TestInverseCepstralOfFlatSpectrum(t *testing.T) {
	const n = 128
	tr, err := New(n)
	if err != nil {
		t.Fatal(err)
	}

	mag := make([]float64, tr.HalfSize())
	for i := range mag {
		mag[i] = math.E // log(e) == 1 in every bin
	}

	ceps := make([]float64, n)
	if err := tr.InverseCepstral(mag, ceps); err != nil {
		t.Fatal(err)
	}

	// A constant log spectrum transforms to an impulse of area n at lag 0.
	if math.Abs(ceps[0]-float64(n)) > 1e-6 {
		t.Fatalf("ceps[0] = %v, want %v", ceps[0], float64(n))
	}
	for i := 1; i < n; i++ {
		if math.Abs(ceps[i]) > 1e-6 {
			t.Fatalf("ceps[%d] = %v, want 0", i, ceps[i])
		}
	}
}
