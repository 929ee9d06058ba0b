package risk

import "sos_engine/internal/classify"

// Severity is the calibrated urgency level of an incident.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Rank orders severities for comparisons; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Thresholds partition [0,1] into severity bands with no gaps or overlaps:
// confidence >= High maps to SeverityHigh, >= Medium to SeverityMedium,
// anything below to SeverityLow.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds matches the calibration the classifiers were tuned for.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.85, Medium: 0.50}
}

// Details is the diagnostic evidence persisted with every incident.
type Details map[string]any

// Fuse combines the two per-modality confidence signals into one severity
// decision. The final confidence is the maximum of the two; audioErr, when
// non-empty, is preserved in the details for observability but does not
// affect the severity computation.
func Fuse(audioSig, textSig classify.Signal, audioErr string, th Thresholds) (Severity, float64, Details) {
	final := audioSig.Confidence
	if textSig.Confidence > final {
		final = textSig.Confidence
	}

	severity := SeverityLow
	switch {
	case final >= th.High:
		severity = SeverityHigh
	case final >= th.Medium:
		severity = SeverityMedium
	}

	details := Details{
		"audio_confidence":         audioSig.Confidence,
		"audio_emotion":            audioSig.Label,
		"text_confidence_distress": textSig.Confidence,
	}
	if audioErr != "" {
		details["audio_error"] = audioErr
	}
	return severity, final, details
}
