// Package fft adapts the external FFT backend to the fixed-size real
// transforms the stretcher performs at each STFT scale.
package fft
