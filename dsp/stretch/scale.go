package stretch

import (
	"log/slog"

	"github.com/cwbudde/algo-stretch/dsp/fft"
	"github.com/cwbudde/algo-stretch/dsp/stretch/guide"
	"github.com/cwbudde/algo-stretch/dsp/window"
)

// scaleData is the immutable per-scale machinery shared read-only by
// every channel: the FFT, the windows, and the guided phase advance
// (which itself carries per-channel state internally).
type scaleData struct {
	fftSize int

	fft             *fft.Transform
	analysisWindow  *window.Windower
	synthesisWindow *window.Windower
	guided          *guide.PhaseAdvance

	// windowScaleFactor relates analysis-window energy to synthesis
	// amplitude; synthesis divides the output hop by it to normalise
	// the overlap-add sum to unity gain.
	windowScaleFactor float64
}

// The window plan follows the scale's role: the scales at and below the
// classification size use the complementary asymmetric pair, which has
// the better time response; larger scales use plain Hann with a
// half-length synthesis window to limit smearing.
func analysisWindowShape(fftSize int) window.Type {
	if fftSize > 2048 {
		return window.TypeHann
	}
	return window.TypeNiemitaloForward
}

func analysisWindowLength(fftSize int) int {
	return fftSize
}

func synthesisWindowShape(fftSize int) window.Type {
	if fftSize > 2048 {
		return window.TypeHann
	}
	return window.TypeNiemitaloReverse
}

func synthesisWindowLength(fftSize int) int {
	if fftSize > 2048 {
		return fftSize / 2
	}
	return fftSize
}

func newScaleData(fftSize, longest int, sampleRate float64, channels int, log *slog.Logger) (*scaleData, error) {
	transform, err := fft.New(fftSize)
	if err != nil {
		return nil, err
	}

	analysis := window.NewWindower(analysisWindowShape(fftSize), analysisWindowLength(fftSize))
	synthesis := window.NewWindower(synthesisWindowShape(fftSize), synthesisWindowLength(fftSize))

	askew := (analysis.Size() - synthesis.Size()) / 2
	factor := 0.0
	for i := 0; i < synthesis.Size(); i++ {
		factor += analysis.Value(i+askew) * synthesis.Value(i)
	}

	return &scaleData{
		fftSize:         fftSize,
		fft:             transform,
		analysisWindow:  analysis,
		synthesisWindow: synthesis,
		guided: guide.NewPhaseAdvance(guide.PhaseAdvanceParameters{
			FFTSize:    fftSize,
			SampleRate: sampleRate,
			Channels:   channels,
		}, log),
		windowScaleFactor: factor,
	}, nil
}
