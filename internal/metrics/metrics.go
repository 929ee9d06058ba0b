package metrics

import "sync/atomic"

// Metrics captures shared operational stats for the scoring pipeline.
type Metrics struct {
	requests        int64
	audioFailures   int64
	textFailures    int64
	persistFailures int64
	alertsSent      int64
	alertFailures   int64

	severityLow    int64
	severityMedium int64
	severityHigh   int64
}

// Snapshot provides a consistent view of the current metrics.
type Snapshot struct {
	Requests        int64 `json:"requests"`
	AudioFailures   int64 `json:"audio_failures"`
	TextFailures    int64 `json:"text_failures"`
	PersistFailures int64 `json:"persist_failures"`
	AlertsSent      int64 `json:"alerts_sent"`
	AlertFailures   int64 `json:"alert_failures"`
	SeverityLow     int64 `json:"severity_low"`
	SeverityMedium  int64 `json:"severity_medium"`
	SeverityHigh    int64 `json:"severity_high"`
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRequest()        { atomic.AddInt64(&m.requests, 1) }
func (m *Metrics) RecordAudioFailure()   { atomic.AddInt64(&m.audioFailures, 1) }
func (m *Metrics) RecordTextFailure()    { atomic.AddInt64(&m.textFailures, 1) }
func (m *Metrics) RecordPersistFailure() { atomic.AddInt64(&m.persistFailures, 1) }

// RecordAlert increments dispatched/failed counters based on outcome.
func (m *Metrics) RecordAlert(err error) {
	atomic.AddInt64(&m.alertsSent, 1)
	if err != nil {
		atomic.AddInt64(&m.alertFailures, 1)
	}
}

// RecordSeverity tallies the per-level outcome counts.
func (m *Metrics) RecordSeverity(severity string) {
	switch severity {
	case "High":
		atomic.AddInt64(&m.severityHigh, 1)
	case "Medium":
		atomic.AddInt64(&m.severityMedium, 1)
	default:
		atomic.AddInt64(&m.severityLow, 1)
	}
}

// Snapshot returns a read-only view of metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Requests:        atomic.LoadInt64(&m.requests),
		AudioFailures:   atomic.LoadInt64(&m.audioFailures),
		TextFailures:    atomic.LoadInt64(&m.textFailures),
		PersistFailures: atomic.LoadInt64(&m.persistFailures),
		AlertsSent:      atomic.LoadInt64(&m.alertsSent),
		AlertFailures:   atomic.LoadInt64(&m.alertFailures),
		SeverityLow:     atomic.LoadInt64(&m.severityLow),
		SeverityMedium:  atomic.LoadInt64(&m.severityMedium),
		SeverityHigh:    atomic.LoadInt64(&m.severityHigh),
	}
}
