package stretch

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// toPolarSpec restricts cartesian-polar conversion: magnitudes over
// [magFrom, magFrom+magCount) and phases over the (usually narrower)
// [polarFrom, polarFrom+polarCount). Phases outside a scale's
// admissible band are never read, so computing them would be waste.
type toPolarSpec struct {
	magFrom    int
	magCount   int
	polarFrom  int
	polarCount int
}

func convertToPolar(mag, phase, re, im []float64, spec toPolarSpec) {
	vecmath.Magnitude(mag[spec.magFrom:spec.magFrom+spec.magCount],
		re[spec.magFrom:spec.magFrom+spec.magCount],
		im[spec.magFrom:spec.magFrom+spec.magCount])

	for i := spec.polarFrom; i < spec.polarFrom+spec.polarCount; i++ {
		phase[i] = math.Atan2(im[i], re[i])
	}
}

func polarToCartesian(re, im, mag, phase []float64) {
	for i := range mag {
		sin, cos := math.Sincos(phase[i])
		re[i] = mag[i] * cos
		im[i] = mag[i] * sin
	}
}

// fftShift rotates buf by half its length, moving the frame centre to
// position zero so that phases are measured from the window centre.
func fftShift(buf []float64) {
	half := len(buf) / 2
	for i := 0; i < half; i++ {
		buf[i], buf[i+half] = buf[i+half], buf[i]
	}
}
