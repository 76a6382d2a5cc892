// Package resample provides the streaming variable-ratio sample rate
// converter the stretcher couples to its pitch scale.
package resample
