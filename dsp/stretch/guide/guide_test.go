package guide

import (
	"math"
	"testing"
)

const testRate = 48000.0

func TestNewConfiguration(t *testing.T) {
	cfg := NewConfiguration(testRate)

	if cfg.LongestFFTSize != 4096 || cfg.ClassificationFFTSize != 2048 {
		t.Fatalf("unexpected scale plan: longest=%d classify=%d",
			cfg.LongestFFTSize, cfg.ClassificationFFTSize)
	}
	if len(cfg.FFTBandLimits) != 3 {
		t.Fatalf("band limit count = %d, want 3", len(cfg.FFTBandLimits))
	}

	classify := cfg.BandLimitsFor(2048)
	if classify == nil {
		t.Fatal("no limits for classification scale")
	}
	if classify.B0Min != 0 || classify.B1Max != 1024 {
		t.Fatalf("classification limits = [%d, %d], want [0, 1024]",
			classify.B0Min, classify.B1Max)
	}

	longest := cfg.BandLimitsFor(4096)
	if longest.B0Min != 0 || longest.B1Max != BinForFrequency(1400, 4096, testRate) {
		t.Fatalf("longest limits = [%d, %d]", longest.B0Min, longest.B1Max)
	}

	if cfg.BandLimitsFor(512) != nil {
		t.Fatal("expected nil for unknown scale")
	}
}

func TestBinForFrequency(t *testing.T) {
	if got := BinForFrequency(0, 2048, testRate); got != 0 {
		t.Fatalf("bin for 0 Hz = %d", got)
	}
	if got := BinForFrequency(testRate/2, 2048, testRate); got != 1024 {
		t.Fatalf("bin for nyquist = %d, want 1024", got)
	}
	// Round trip within half a bin.
	for _, f := range []float64{100, 700, 4800, 15000} {
		b := BinForFrequency(f, 4096, testRate)
		back := FrequencyForBin(b, 4096, testRate)
		if math.Abs(back-f) > testRate/4096/2+1e-9 {
			t.Fatalf("freq %v: bin %d maps back to %v", f, b, back)
		}
	}
}

func newTestGuide() *Guide {
	return New(Parameters{SampleRate: testRate}, nil)
}

func flatSpectrum(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestUpdateGuidanceUnityCollapsesToSingleBand(t *testing.T) {
	g := newTestGuide()
	bins := g.Config().ClassificationFFTSize/2 + 1

	var out Guidance
	InitGuidance(&out)

	mag := flatSpectrum(bins, 0.01)
	seg := Segmentation{PercussiveAbove: testRate / 2, ResidualAbove: testRate / 2}

	g.UpdateGuidance(1.0, 256, mag, mag, flatSpectrum(bins, 0.01*2048), seg, seg, seg,
		0.01, 3, false, false, &out)

	if !out.PhaseReset {
		t.Fatal("expected phase reset at unity")
	}
	if len(out.FFTBands) != 1 || out.FFTBands[0].FFTSize != 2048 {
		t.Fatalf("bands = %+v, want single classification band", out.FFTBands)
	}
	if out.FFTBands[0].F0 != 0 || out.FFTBands[0].F1 != testRate/2 {
		t.Fatalf("unity band = [%v, %v]", out.FFTBands[0].F0, out.FFTBands[0].F1)
	}
}

func TestUpdateGuidanceThreeBandsWhenStretching(t *testing.T) {
	g := newTestGuide()
	bins := g.Config().ClassificationFFTSize/2 + 1

	var out Guidance
	InitGuidance(&out)

	mag := flatSpectrum(bins, 0.01)
	seg := Segmentation{PercussiveAbove: testRate / 2, ResidualAbove: testRate / 2}

	g.UpdateGuidance(2.0, 256, mag, mag, flatSpectrum(bins, 0.01*2048), seg, seg, seg,
		0.01, 0, false, false, &out)

	if out.PhaseReset {
		t.Fatal("unexpected phase reset")
	}
	if len(out.FFTBands) != 3 {
		t.Fatalf("band count = %d, want 3", len(out.FFTBands))
	}
	sizes := []int{out.FFTBands[0].FFTSize, out.FFTBands[1].FFTSize, out.FFTBands[2].FFTSize}
	if sizes[0] != 4096 || sizes[1] != 2048 || sizes[2] != 1024 {
		t.Fatalf("band sizes = %v", sizes)
	}
	// Bands must tile [0, nyquist] without gaps.
	if out.FFTBands[0].F0 != 0 || out.FFTBands[2].F1 != testRate/2 {
		t.Fatalf("outer band edges = %v, %v", out.FFTBands[0].F0, out.FFTBands[2].F1)
	}
	for i := 0; i < 2; i++ {
		if out.FFTBands[i].F1 != out.FFTBands[i+1].F0 {
			t.Fatalf("bands %d and %d do not meet: %v vs %v",
				i, i+1, out.FFTBands[i].F1, out.FFTBands[i+1].F0)
		}
	}
}

func TestUpdateGuidanceLargeOuthopDropsShortestScale(t *testing.T) {
	g := newTestGuide()
	bins := g.Config().ClassificationFFTSize/2 + 1

	var out Guidance
	InitGuidance(&out)

	mag := flatSpectrum(bins, 0.01)
	seg := Segmentation{PercussiveAbove: testRate / 2, ResidualAbove: testRate / 2}

	g.UpdateGuidance(2.0, 326, mag, mag, flatSpectrum(bins, 0.01*2048), seg, seg, seg,
		0.01, 0, false, false, &out)

	if len(out.FFTBands) != 2 {
		t.Fatalf("band count = %d, want 2", len(out.FFTBands))
	}
	for _, b := range out.FFTBands {
		if b.FFTSize == 1024 {
			t.Fatal("1024 scale should be dropped for outhop > 256")
		}
	}
	if out.FFTBands[1].F1 != testRate/2 {
		t.Fatalf("top band ends at %v, want nyquist", out.FFTBands[1].F1)
	}
}

func TestUpdateGuidanceKickDetection(t *testing.T) {
	g := newTestGuide()
	classify := g.Config().ClassificationFFTSize
	bins := classify/2 + 1

	quiet := flatSpectrum(bins, 0.001)
	loud := make([]float64, bins)
	copy(loud, quiet)
	lo := BinForFrequency(40, classify, testRate)
	hi := BinForFrequency(600, classify, testRate)
	for i := lo; i <= hi; i++ {
		loud[i] = 0.5
	}

	// Scale into the unscaled readahead domain.
	loudReadahead := make([]float64, bins)
	for i := range loud {
		loudReadahead[i] = loud[i] * float64(classify)
	}

	seg := Segmentation{PercussiveAbove: testRate / 2, ResidualAbove: testRate / 2}

	var out Guidance
	InitGuidance(&out)

	// Onset visible only in the readahead: pre-kick.
	g.UpdateGuidance(2.0, 256, quiet, quiet, loudReadahead, seg, seg, seg,
		0.001, 0, false, false, &out)
	if !out.PreKick.Present || out.Kick.Present {
		t.Fatalf("expected pre-kick only: preKick=%v kick=%v",
			out.PreKick.Present, out.Kick.Present)
	}
	if out.PreKick.F0 != 40 || out.PreKick.F1 != 600 {
		t.Fatalf("pre-kick band = [%v, %v]", out.PreKick.F0, out.PreKick.F1)
	}

	// Onset landed in the current frame: kick.
	quietReadahead := make([]float64, bins)
	for i := range quiet {
		quietReadahead[i] = quiet[i] * float64(classify)
	}
	g.UpdateGuidance(2.0, 256, loud, quiet, quietReadahead, seg, seg, seg,
		0.001, 0, false, false, &out)
	if !out.Kick.Present || out.PreKick.Present {
		t.Fatalf("expected kick only: preKick=%v kick=%v",
			out.PreKick.Present, out.Kick.Present)
	}
}

func TestUpdateGuidanceReusesBandSlice(t *testing.T) {
	g := newTestGuide()
	bins := g.Config().ClassificationFFTSize/2 + 1

	var out Guidance
	InitGuidance(&out)
	backing := out.FFTBands[:cap(out.FFTBands)]

	mag := flatSpectrum(bins, 0.01)
	seg := Segmentation{PercussiveAbove: testRate / 2, ResidualAbove: testRate / 2}

	for i := 0; i < 10; i++ {
		g.UpdateGuidance(2.0, 256, mag, mag, flatSpectrum(bins, 0.01*2048), seg, seg, seg,
			0.01, 0, false, false, &out)
	}

	if &out.FFTBands[0] != &backing[0] {
		t.Fatal("band slice was reallocated on the audio path")
	}
}
