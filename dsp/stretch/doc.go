// Package stretch implements a realtime-capable audio time stretcher
// and pitch shifter built around a multi-resolution short-time Fourier
// transform.
//
// The engine analyses each frame at several FFT sizes in parallel, uses
// a per-bin classifier and segmenter to decide which scale should carry
// which part of the spectrum, advances phases under that guidance,
// optionally pins the spectral envelope (formant preservation), and
// resynthesises by windowed overlap-add with a coupled variable-ratio
// resampler for pitch shifting.
//
// Two modes of operation are supported. In realtime mode input is
// processed as it arrives with a fixed start delay; ratios may be
// changed at any time from a control thread. In offline mode the input
// may first be studied in full, which lets the engine trim its output
// to the exact target duration and follow a key-frame map of
// input-to-output anchor points.
//
// All buffers are allocated at construction; the audio path performs no
// allocation and takes no locks.
package stretch
