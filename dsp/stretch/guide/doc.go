// Package guide supplies the decision-making collaborators of the
// multi-resolution stretcher: the per-bin classifier, the bin
// segmenter, the guide that turns classification history into per-frame
// band and transient guidance, the guided phase advance, and the
// stretch-rate calculator.
package guide
