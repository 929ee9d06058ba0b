package metrics

import (
	"errors"
	"sync"
	"testing"
)

func TestSnapshotCounts(t *testing.T) {
	m := New()
	m.RecordRequest()
	m.RecordRequest()
	m.RecordAudioFailure()
	m.RecordTextFailure()
	m.RecordPersistFailure()
	m.RecordAlert(nil)
	m.RecordAlert(errors.New("webhook down"))
	m.RecordSeverity("High")
	m.RecordSeverity("Medium")
	m.RecordSeverity("Low")
	m.RecordSeverity("bogus")

	s := m.Snapshot()
	if s.Requests != 2 || s.AudioFailures != 1 || s.TextFailures != 1 || s.PersistFailures != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.AlertsSent != 2 || s.AlertFailures != 1 {
		t.Fatalf("alerts = %d/%d", s.AlertsSent, s.AlertFailures)
	}
	if s.SeverityHigh != 1 || s.SeverityMedium != 1 || s.SeverityLow != 2 {
		t.Fatalf("severities = %d/%d/%d", s.SeverityHigh, s.SeverityMedium, s.SeverityLow)
	}
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordRequest()
			}
		}()
	}
	wg.Wait()
	if got := m.Snapshot().Requests; got != 5000 {
		t.Fatalf("requests = %d, want 5000", got)
	}
}
