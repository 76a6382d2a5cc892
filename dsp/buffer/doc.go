// Package buffer provides the PCM sample ring buffer used on the
// stretcher's input and output sides.
package buffer
