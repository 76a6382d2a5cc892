// Package window provides the window functions used by the STFT
// analysis and resynthesis stages, together with a precomputed Windower
// for repeated framing operations.
package window
