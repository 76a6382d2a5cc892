package stretch

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-stretch/internal/testutil"
)

// runOffline drives a stretcher through the whole input in chunks,
// interleaving retrieval the way an offline client does, and returns
// everything the stretcher emitted for channel 0.
func runOffline(t *testing.T, s *Stretcher, input []float64, chunkSize int) []float64 {
	t.Helper()

	s.SetMaxProcessSize(chunkSize)

	out := make([]float64, 0, 2*len(input))
	scratch := [][]float64{make([]float64, 16384)}

	drain := func() {
		for {
			av := s.Available()
			if av <= 0 {
				return
			}
			if av > len(scratch[0]) {
				av = len(scratch[0])
			}
			got := s.Retrieve(scratch, av)
			out = append(out, scratch[0][:got]...)
			if got == 0 {
				return
			}
		}
	}

	for off := 0; off < len(input); off += chunkSize {
		end := off + chunkSize
		if end > len(input) {
			end = len(input)
		}
		s.Process([][]float64{input[off:end]}, end-off, end == len(input))
		drain()
	}
	drain()

	if av := s.Available(); av != -1 {
		t.Fatalf("available = %d after full drain, want -1", av)
	}

	return out
}

func TestIdentityReconstruction(t *testing.T) {
	s := newOffline(t, 1.0, 1.0, 0)

	input := testutil.DeterministicSine(440, testRate, 0.8, 48000)
	s.Study([][]float64{input}, len(input), true)

	out := runOffline(t, s, input, 48000)

	if len(out) != 48000 {
		t.Fatalf("output length = %d, want 48000", len(out))
	}
	testutil.RequireFinite(t, out)

	corr, lag := testutil.BestCorrelation(input[8192:39808], out, 8192-512, 8192+512)
	if corr < 0.999 {
		t.Fatalf("correlation = %v at lag %d, want >= 0.999", corr, lag)
	}
}

func TestTimeStretchDouble(t *testing.T) {
	s := newOffline(t, 2.0, 1.0, 0)

	input := testutil.DeterministicNoise(1234, 0.5, 48000)
	s.Study([][]float64{input}, len(input), true)

	out := runOffline(t, s, input, 16000)

	if math.Abs(float64(len(out)-96000)) > 1 {
		t.Fatalf("output length = %d, want 96000 +- 1", len(out))
	}
	testutil.RequireFinite(t, out)

	cin := testutil.SpectralCentroid(input, testRate)
	cout := testutil.SpectralCentroid(out[4096:len(out)-4096], testRate)
	if dev := math.Abs(cout-cin) / cin; dev > 0.02 {
		t.Fatalf("spectral centroid moved by %.1f%%: %v -> %v", dev*100, cin, cout)
	}
}

func TestPitchShiftOctaveUp(t *testing.T) {
	s := newOffline(t, 1.0, 2.0, 0)

	input := testutil.DeterministicSine(220, testRate, 0.8, 48000)
	s.Study([][]float64{input}, len(input), true)

	out := runOffline(t, s, input, 16000)

	if len(out) != 48000 {
		t.Fatalf("output length = %d, want 48000", len(out))
	}
	testutil.RequireFinite(t, out)

	peak := testutil.DominantFrequency(out[8000:40000], testRate, 300, 600, 0.5)
	if math.Abs(peak-440) > 2 {
		t.Fatalf("dominant frequency = %v Hz, want 440 +- 2", peak)
	}
}

func TestFormantPreservation(t *testing.T) {
	formants := []testutil.Formant{
		{Frequency: 730, Bandwidth: 80},
		{Frequency: 1090, Bandwidth: 90},
		{Frequency: 2440, Bandwidth: 120},
	}
	input := testutil.DeterministicVowel(110, testRate, formants, 48000)

	s := newOffline(t, 1.0, 2.0, OptionFormantPreserved)
	s.Study([][]float64{input}, len(input), true)

	out := runOffline(t, s, input, 16000)
	if len(out) != 48000 {
		t.Fatalf("output length = %d, want 48000", len(out))
	}
	testutil.RequireFinite(t, out)

	body := out[8000:40000]
	for _, f := range formants {
		got := testutil.BandCentroid(body, testRate, f.Frequency-250, f.Frequency+250, 5)
		if math.Abs(got-f.Frequency) > 50 {
			t.Fatalf("formant at %v Hz measured at %v Hz after shift", f.Frequency, got)
		}
	}
}

func TestKeyFrameStretch(t *testing.T) {
	const inputLen = 480000

	input := testutil.DeterministicNoise(99, 0.4, inputLen)

	s := newOffline(t, 1.5, 1.0, 0)
	s.Study([][]float64{input}, inputLen, true)
	s.SetKeyFrameMap(map[int]int{240000: 480000})

	out := runOffline(t, s, input, 24000)

	if math.Abs(float64(len(out)-720000)) > 1 {
		t.Fatalf("output length = %d, want 720000 +- 1", len(out))
	}
}

func TestRealTimeDrift(t *testing.T) {
	seconds := 60
	if testing.Short() {
		seconds = 10
	}

	s := newOffline(t, 1.25, 1.0, OptionProcessRealTime)

	total := seconds * int(testRate)
	input := testutil.DeterministicSine(330, testRate, 0.5, total)

	const block = 512
	out := 0
	scratch := [][]float64{make([]float64, 8192)}

	for off := 0; off < total; off += block {
		end := off + block
		if end > total {
			end = total
		}
		final := end == total

		if !final {
			if av := s.Available(); av == -1 {
				t.Fatal("available returned -1 before the input ended")
			}
		}

		s.Process([][]float64{input[off:end]}, end-off, final)

		for {
			av := s.Available()
			if av <= 0 {
				break
			}
			if av > len(scratch[0]) {
				av = len(scratch[0])
			}
			out += s.Retrieve(scratch, av)
		}
	}

	// The drain tail after the final block adds up to one longest
	// frame of windowed output beyond the ideal total.
	want := float64(total) * 1.25
	if math.Abs(float64(out)-want) > 8192 {
		t.Fatalf("emitted %d samples, want %v within a frame or two", out, want)
	}
}

func TestResetIdempotence(t *testing.T) {
	input := testutil.DeterministicNoise(7, 0.5, 24000)

	s := newOffline(t, 1.5, 1.0, 0)

	s.Study([][]float64{input}, len(input), true)
	first := runOffline(t, s, input, 8000)

	s.Reset()

	s.Study([][]float64{input}, len(input), true)
	second := runOffline(t, s, input, 8000)

	testutil.RequireSameSamples(t, first, second)
}

func TestAccumulatorInvariants(t *testing.T) {
	s := newOffline(t, 2.0, 1.0, 0)
	longest := s.config.LongestFFTSize

	input := testutil.DeterministicNoise(3, 0.5, 24000)
	s.Study([][]float64{input}, len(input), true)
	_ = runOffline(t, s, input, 8000)

	for _, cs := range s.channels[0].scales {
		if cs.accumulatorFill < 0 || cs.accumulatorFill > longest {
			t.Fatalf("accumulator fill %d outside [0, %d]", cs.accumulatorFill, longest)
		}
		for i := cs.accumulatorFill; i < len(cs.accumulator); i++ {
			if cs.accumulator[i] != 0 {
				t.Fatalf("accumulator[%d] = %v beyond fill %d",
					i, cs.accumulator[i], cs.accumulatorFill)
			}
		}
	}
}

func TestChannelsStayInLockstep(t *testing.T) {
	s, err := New(Parameters{
		SampleRate: testRate,
		Channels:   2,
		Options:    OptionChannelsTogether,
	}, 1.5, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.SetMaxProcessSize(8000)

	left := testutil.DeterministicSine(440, testRate, 0.7, 24000)
	right := testutil.DeterministicSine(550, testRate, 0.5, 24000)

	s.Study([][]float64{left, right}, 24000, true)

	scratch := [][]float64{make([]float64, 8192), make([]float64, 8192)}
	for off := 0; off < 24000; off += 8000 {
		s.Process([][]float64{left[off : off+8000], right[off : off+8000]},
			8000, off+8000 == 24000)

		if a, b := s.channels[0].inbuf.ReadSpace(), s.channels[1].inbuf.ReadSpace(); a != b {
			t.Fatalf("input read spaces diverged: %d vs %d", a, b)
		}

		for {
			av := s.Available()
			if av <= 0 {
				break
			}
			if av > 8192 {
				av = 8192
			}
			got := s.Retrieve(scratch, av)
			if got != av {
				t.Fatalf("retrieve returned %d of %d", got, av)
			}
		}
	}
}

func TestPrevInhopTracksInhop(t *testing.T) {
	s := newOffline(t, 1.25, 1.0, 0)
	s.SetMaxProcessSize(16000)

	input := testutil.DeterministicNoise(11, 0.5, 16000)
	s.Process([][]float64{input}, 16000, false)

	if got, want := s.prevInhop, int(s.inhop.Load()); got != want {
		t.Fatalf("prevInhop = %d after steady processing, want %d", got, want)
	}
}
