package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sos_engine/internal/classify"
	"sos_engine/internal/config"
	"sos_engine/internal/metrics"
	"sos_engine/internal/notify"
	"sos_engine/internal/risk"
	"sos_engine/internal/store"
)

// ErrInternal is the generic boundary error for anything the per-stage
// fallbacks did not absorb. Callers surface it without detail.
var ErrInternal = errors.New("internal error during risk scoring")

// AudioScorer scores an uploaded audio file into a distress signal.
type AudioScorer interface {
	Score(ctx context.Context, path string) (classify.Signal, error)
}

// TextScorer scores free text into a distress signal.
type TextScorer interface {
	Score(ctx context.Context, text string) (classify.Signal, error)
}

// IncidentStore is the persistence capability the pipeline requires.
type IncidentStore interface {
	SaveIncident(ctx context.Context, inc *store.Incident) (int64, error)
}

// Request is one SOS submission. Location is structurally required; audio
// and text are optional.
type Request struct {
	Audio    []byte
	AudioExt string // original upload extension, ".webm" when unknown
	Location string
	Text     string
}

// Result is the scored outcome returned to the caller.
type Result struct {
	Severity   risk.Severity `json:"severity"`
	Confidence float64       `json:"confidence"`
	Message    string        `json:"message"`
	Details    risk.Details  `json:"details"`
	IncidentID int64         `json:"-"`
}

// Pipeline orchestrates one SOS request end to end: transient audio file
// lifecycle, scoring, fusion, at-most-once persistence, conditional alert
// dispatch, and guaranteed cleanup. Scorers may be absent (degraded mode)
// and are swappable by the model watcher; everything else is immutable and
// shared by all in-flight requests.
type Pipeline struct {
	uploadDir  string
	thresholds risk.Thresholds
	store      IncidentStore
	notifier   notify.Notifier
	recipient  string
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	audio AudioScorer
	text  TextScorer
}

func New(cfg config.Config, th risk.Thresholds, st IncidentStore, n notify.Notifier, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		uploadDir:  cfg.UploadDir,
		thresholds: th,
		store:      st,
		notifier:   n,
		recipient:  cfg.AlertRecipient,
		metrics:    m,
	}
}

// SetScorers installs the modality scorers. A nil scorer means the modality
// is disabled and contributes a zero signal. Called at startup and again on
// model reload.
func (p *Pipeline) SetScorers(audio AudioScorer, text TextScorer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = audio
	p.text = text
}

// scorers fetches the current scorer pair without holding the lock across
// any scoring call.
func (p *Pipeline) scorers() (AudioScorer, TextScorer) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.audio, p.text
}

// Process runs the request state machine:
//
//	Received -> AudioProcessing? -> Scoring -> Persisted -> AlertDispatched? -> Completed
//
// Audio trouble degrades to a zero signal and an audio_error note. Text
// scoring is best-effort. Persistence failure is fatal. Alert dispatch
// failure is logged only. The transient audio file is removed on every exit
// path, panics included, before the boundary error is shaped.
func (p *Pipeline) Process(ctx context.Context, req Request) (res *Result, err error) {
	p.metrics.RecordRequest()
	audioScorer, textScorer := p.scorers()

	var transient string
	defer func() {
		if transient != "" {
			if rmErr := os.Remove(transient); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Printf("pipeline: remove transient audio: %v", rmErr)
			}
		}
		if r := recover(); r != nil {
			log.Printf("pipeline: recovered: %v", r)
			res, err = nil, ErrInternal
		}
	}()

	// AudioProcessing: only when audio was supplied, and never fatal.
	audioSig := classify.ZeroSignal()
	audioErr := ""
	if len(req.Audio) > 0 {
		path, werr := p.writeTransient(req.Audio, req.AudioExt)
		if werr != nil {
			audioErr = "audio upload could not be stored"
			p.metrics.RecordAudioFailure()
			log.Printf("pipeline: transient write: %v", werr)
		} else {
			transient = path
			switch {
			case audioScorer == nil:
				audioErr = "audio model unavailable"
				p.metrics.RecordAudioFailure()
			default:
				sig, serr := audioScorer.Score(ctx, path)
				if serr != nil {
					audioErr = "audio processing failed (codec or model issue)"
					p.metrics.RecordAudioFailure()
					log.Printf("pipeline: audio scoring: %v", serr)
				} else {
					audioSig = sig
				}
			}
		}
	}

	// Scoring: text is best-effort and proceeds regardless of audio outcome.
	textSig := classify.ZeroSignal()
	if req.Text != "" && textScorer != nil {
		sig, terr := textScorer.Score(ctx, req.Text)
		if terr != nil {
			p.metrics.RecordTextFailure()
			log.Printf("pipeline: text scoring: %v", terr)
		} else {
			textSig = sig
		}
	}

	severity, confidence, details := risk.Fuse(audioSig, textSig, audioErr, p.thresholds)
	p.metrics.RecordSeverity(string(severity))

	// Persisted: the record is the system of record; failure here is fatal.
	lat, lon := ParseLocation(req.Location)
	blob, merr := json.Marshal(details)
	if merr != nil {
		return nil, fmt.Errorf("encode details: %w", merr)
	}
	inc := &store.Incident{
		CreatedAt: config.Now(),
		Latitude:  lat,
		Longitude: lon,
		Severity:  string(severity),
		Details:   string(blob),
	}
	id, perr := p.store.SaveIncident(ctx, inc)
	if perr != nil {
		p.metrics.RecordPersistFailure()
		return nil, fmt.Errorf("persist incident: %w", perr)
	}

	// AlertDispatched: Medium and High only; failure never fails the request.
	if severity.Rank() >= risk.SeverityMedium.Rank() {
		alert := notify.Alert{
			Recipient:  p.recipient,
			Severity:   severity,
			Confidence: confidence,
			Location:   req.Location,
			MapLink:    MapLink(lat, lon),
		}
		derr := p.notifier.Dispatch(ctx, alert)
		p.metrics.RecordAlert(derr)
		if derr != nil {
			log.Printf("pipeline: alert dispatch: %v", derr)
		}
	}

	return &Result{
		Severity:   severity,
		Confidence: confidence,
		Message:    fmt.Sprintf("Alert received and classified as %s.", severity),
		Details:    details,
		IncidentID: id,
	}, nil
}

// writeTransient persists upload bytes under a per-request unique name so
// concurrent requests never collide on storage.
func (p *Pipeline) writeTransient(data []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".webm"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.uploadDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
