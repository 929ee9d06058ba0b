package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sos_engine/internal/classify"
	"sos_engine/internal/config"
	"sos_engine/internal/metrics"
	"sos_engine/internal/notify"
	"sos_engine/internal/risk"
	"sos_engine/internal/store"
)

type fakeAudioScorer struct {
	sig     classify.Signal
	err     error
	panics  bool
	gotPath string
}

func (f *fakeAudioScorer) Score(_ context.Context, path string) (classify.Signal, error) {
	f.gotPath = path
	if _, err := os.Stat(path); err != nil {
		return classify.ZeroSignal(), errors.New("transient file missing during scoring")
	}
	if f.panics {
		panic("scorer blew up")
	}
	if f.err != nil {
		return classify.ZeroSignal(), f.err
	}
	return f.sig, nil
}

type fakeTextScorer struct {
	sig classify.Signal
	err error
}

func (f *fakeTextScorer) Score(context.Context, string) (classify.Signal, error) {
	if f.err != nil {
		return classify.ZeroSignal(), f.err
	}
	return f.sig, nil
}

type fakeStore struct {
	saved []store.Incident
	err   error
}

func (f *fakeStore) SaveIncident(_ context.Context, inc *store.Incident) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, *inc)
	id := int64(len(f.saved))
	inc.ID = id
	return id, nil
}

type fakeNotifier struct {
	alerts []notify.Alert
	err    error
}

func (f *fakeNotifier) Dispatch(_ context.Context, a notify.Alert) error {
	f.alerts = append(f.alerts, a)
	return f.err
}

func newTestPipeline(t *testing.T, audio AudioScorer, text TextScorer, st IncidentStore, n notify.Notifier) *Pipeline {
	t.Helper()
	cfg := config.Config{
		UploadDir:      t.TempDir(),
		AlertRecipient: "police@emergency.com",
	}
	p := New(cfg, risk.DefaultThresholds(), st, n, metrics.New())
	p.SetScorers(audio, text)
	return p
}

func detailsOf(t *testing.T, inc store.Incident) map[string]any {
	t.Helper()
	var d map[string]any
	if err := json.Unmarshal([]byte(inc.Details), &d); err != nil {
		t.Fatalf("details not valid JSON: %v", err)
	}
	return d
}

func TestProcessTextOnlyLow(t *testing.T) {
	st := &fakeStore{}
	n := &fakeNotifier{}
	text := &fakeTextScorer{sig: classify.Signal{Confidence: 0.10, Label: "distress"}}
	p := newTestPipeline(t, nil, text, st, n)

	res, err := p.Process(context.Background(), Request{Location: "40.7,-74.0", Text: "checking in"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Severity != risk.SeverityLow {
		t.Fatalf("severity = %s, want Low", res.Severity)
	}
	if res.Message != "Alert received and classified as Low." {
		t.Fatalf("message = %q", res.Message)
	}
	if len(n.alerts) != 0 {
		t.Fatalf("Low severity dispatched %d alerts", len(n.alerts))
	}
	if len(st.saved) != 1 {
		t.Fatalf("saved %d incidents, want 1", len(st.saved))
	}

	d := detailsOf(t, st.saved[0])
	if d["audio_emotion"] != "N/A" {
		t.Errorf("audio_emotion = %v, want N/A", d["audio_emotion"])
	}
	if d["text_confidence_distress"] != 0.10 {
		t.Errorf("text_confidence_distress = %v", d["text_confidence_distress"])
	}
	if _, ok := d["audio_error"]; ok {
		t.Error("audio_error present for a text-only request")
	}
}

func TestProcessAudioHighDispatchesAlert(t *testing.T) {
	st := &fakeStore{}
	n := &fakeNotifier{}
	aud := &fakeAudioScorer{sig: classify.Signal{Confidence: 0.91, Label: "fear"}}
	p := newTestPipeline(t, aud, nil, st, n)

	res, err := p.Process(context.Background(), Request{
		Audio:    []byte("fake-webm"),
		AudioExt: ".webm",
		Location: "40.7128,-74.0060",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Severity != risk.SeverityHigh || res.Confidence != 0.91 {
		t.Fatalf("got %s/%v, want High/0.91", res.Severity, res.Confidence)
	}
	if len(n.alerts) != 1 {
		t.Fatalf("dispatched %d alerts, want 1", len(n.alerts))
	}
	a := n.alerts[0]
	if a.Recipient != "police@emergency.com" || a.Severity != risk.SeverityHigh {
		t.Errorf("alert = %+v", a)
	}
	if a.MapLink != "https://www.google.com/maps/search/?api=1&query=40.7128,-74.0060" {
		t.Errorf("map link = %q", a.MapLink)
	}

	if aud.gotPath == "" {
		t.Fatal("scorer never saw a transient path")
	}
	if _, err := os.Stat(aud.gotPath); !os.IsNotExist(err) {
		t.Fatalf("transient file still exists after success: %v", err)
	}
	if st.saved[0].Latitude != "40.7128" || st.saved[0].Longitude != "-74.0060" {
		t.Errorf("stored location = %s,%s", st.saved[0].Latitude, st.saved[0].Longitude)
	}
}

func TestProcessAlertOnlyForMediumAndHigh(t *testing.T) {
	cases := []struct {
		confidence float64
		wantAlerts int
	}{
		{0.30, 0},
		{0.50, 1},
		{0.85, 1},
	}
	for _, tc := range cases {
		st := &fakeStore{}
		n := &fakeNotifier{}
		text := &fakeTextScorer{sig: classify.Signal{Confidence: tc.confidence, Label: "distress"}}
		p := newTestPipeline(t, nil, text, st, n)

		if _, err := p.Process(context.Background(), Request{Location: "1,2", Text: "help"}); err != nil {
			t.Fatalf("confidence %v: %v", tc.confidence, err)
		}
		if len(n.alerts) != tc.wantAlerts {
			t.Errorf("confidence %v: %d alerts, want %d", tc.confidence, len(n.alerts), tc.wantAlerts)
		}
	}
}

func TestProcessAudioFailureDegrades(t *testing.T) {
	st := &fakeStore{}
	aud := &fakeAudioScorer{err: errors.New("codec exploded")}
	p := newTestPipeline(t, aud, nil, st, &fakeNotifier{})

	res, err := p.Process(context.Background(), Request{Audio: []byte("x"), Location: "1,2"})
	if err != nil {
		t.Fatalf("audio failure must not fail the request: %v", err)
	}
	if res.Severity != risk.SeverityLow {
		t.Fatalf("severity = %s, want Low", res.Severity)
	}
	d := detailsOf(t, st.saved[0])
	if d["audio_error"] != "audio processing failed (codec or model issue)" {
		t.Errorf("audio_error = %v", d["audio_error"])
	}
	if _, err := os.Stat(aud.gotPath); !os.IsNotExist(err) {
		t.Fatal("transient file not removed after scoring failure")
	}
}

func TestProcessAudioWithoutScorer(t *testing.T) {
	st := &fakeStore{}
	p := newTestPipeline(t, nil, nil, st, &fakeNotifier{})

	res, err := p.Process(context.Background(), Request{Audio: []byte("x"), Location: "1,2"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Severity != risk.SeverityLow {
		t.Fatalf("severity = %s, want Low", res.Severity)
	}
	d := detailsOf(t, st.saved[0])
	if d["audio_error"] != "audio model unavailable" {
		t.Errorf("audio_error = %v", d["audio_error"])
	}
}

func TestProcessTextFailureIsBestEffort(t *testing.T) {
	st := &fakeStore{}
	text := &fakeTextScorer{err: errors.New("inference failed")}
	p := newTestPipeline(t, nil, text, st, &fakeNotifier{})

	res, err := p.Process(context.Background(), Request{Location: "1,2", Text: "help me"})
	if err != nil {
		t.Fatalf("text failure must not fail the request: %v", err)
	}
	if res.Severity != risk.SeverityLow || res.Confidence != 0 {
		t.Fatalf("got %s/%v, want Low/0", res.Severity, res.Confidence)
	}
}

func TestProcessPanicRecoversAndCleansUp(t *testing.T) {
	aud := &fakeAudioScorer{panics: true}
	p := newTestPipeline(t, aud, nil, &fakeStore{}, &fakeNotifier{})

	res, err := p.Process(context.Background(), Request{Audio: []byte("x"), Location: "1,2"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
	if res != nil {
		t.Fatal("result must be nil after a panic")
	}
	if _, err := os.Stat(aud.gotPath); !os.IsNotExist(err) {
		t.Fatal("transient file not removed after panic")
	}
}

func TestProcessPersistFailureIsFatal(t *testing.T) {
	st := &fakeStore{err: errors.New("disk full")}
	n := &fakeNotifier{}
	aud := &fakeAudioScorer{sig: classify.Signal{Confidence: 0.95, Label: "fear"}}
	p := newTestPipeline(t, aud, nil, st, n)

	_, err := p.Process(context.Background(), Request{Audio: []byte("x"), Location: "1,2"})
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if len(n.alerts) != 0 {
		t.Fatal("alert dispatched despite persistence failure")
	}
	if _, serr := os.Stat(aud.gotPath); !os.IsNotExist(serr) {
		t.Fatal("transient file not removed after persistence failure")
	}
}

func TestProcessAlertFailureDoesNotFailRequest(t *testing.T) {
	st := &fakeStore{}
	n := &fakeNotifier{err: errors.New("webhook down")}
	text := &fakeTextScorer{sig: classify.Signal{Confidence: 0.9, Label: "distress"}}
	p := newTestPipeline(t, nil, text, st, n)

	res, err := p.Process(context.Background(), Request{Location: "1,2", Text: "help"})
	if err != nil {
		t.Fatalf("dispatch failure must not fail the request: %v", err)
	}
	if res.Severity != risk.SeverityHigh {
		t.Fatalf("severity = %s, want High", res.Severity)
	}
	if len(st.saved) != 1 {
		t.Fatal("incident not persisted")
	}
}

func TestWriteTransientUniqueNames(t *testing.T) {
	p := newTestPipeline(t, nil, nil, &fakeStore{}, &fakeNotifier{})

	a, err := p.writeTransient([]byte("one"), "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.writeTransient([]byte("two"), "webm")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("transient paths collided")
	}
	if filepath.Ext(a) != ".webm" || filepath.Ext(b) != ".webm" {
		t.Fatalf("extensions = %q, %q", filepath.Ext(a), filepath.Ext(b))
	}
}
