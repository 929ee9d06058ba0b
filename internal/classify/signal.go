package classify

import "errors"

// LabelNone is the placeholder emitted when a modality produced no
// distress-indicative probability.
const LabelNone = "N/A"

// ErrModelUnavailable marks a classifier whose model assets failed to load.
// The affected modality is skipped for the process lifetime (or until the
// model watcher triggers a reload); it is never a per-request failure.
var ErrModelUnavailable = errors.New("model unavailable")

// Signal is one modality's strongest distress-indicative probability paired
// with the label that produced it.
type Signal struct {
	Confidence float64
	Label      string
}

// ZeroSignal is the degraded-mode value: no confidence, no label.
func ZeroSignal() Signal {
	return Signal{Confidence: 0, Label: LabelNone}
}
