package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"sos_engine/internal/audio"
	"sos_engine/internal/classify"
	"sos_engine/internal/config"
	"sos_engine/internal/httpapi"
	"sos_engine/internal/metrics"
	"sos_engine/internal/notify"
	"sos_engine/internal/pipeline"
	"sos_engine/internal/risk"
	"sos_engine/internal/store"
	"sos_engine/internal/watch"
)

// App wires configuration, storage, the scoring pipeline, the model watcher,
// and the HTTP surface into one runnable unit.
type App struct {
	cfg     config.Config
	eng     config.Engine
	store   *store.Store
	metrics *metrics.Metrics
	pipe    *pipeline.Pipeline
	watcher *watch.Watcher
	server  *http.Server
}

func New(cfg config.Config) (*App, error) {
	eng, err := config.LoadEngine(cfg.EnginePath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, cfg.WebhookBotID)
	}

	m := metrics.New()
	th := risk.Thresholds{High: eng.HighThreshold, Medium: eng.MediumThreshold}

	a := &App{
		cfg:     cfg,
		eng:     eng,
		store:   st,
		metrics: m,
		pipe:    pipeline.New(cfg, th, st, notifier, m),
	}
	a.loadScorers()

	if cfg.EnableWatcher {
		a.watcher = watch.New(cfg.ModelsDir, a.loadScorers)
	}

	api := httpapi.NewServer(a.pipe, st, m, cfg.MaxUploadBytes)
	a.server = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// loadScorers builds the modality scorers from the current model files and
// installs them on the pipeline. A modality that cannot load is disabled,
// never fatal: the service starts and answers with degraded scoring. On
// reload, superseded inference sessions are deliberately left open because
// in-flight requests may still hold them; reloads are rare administrative
// events.
func (a *App) loadScorers() {
	var audioScorer pipeline.AudioScorer
	var textScorer pipeline.TextScorer

	if a.cfg.EnableAudio {
		s, err := a.buildAudioScorer()
		if err != nil {
			log.Printf("app: audio scoring disabled: %v", err)
		} else {
			audioScorer = s
		}
	} else {
		log.Printf("app: audio scoring disabled by config")
	}

	if a.cfg.EnableText {
		t, err := a.buildTextScorer()
		if err != nil {
			log.Printf("app: text scoring disabled: %v", err)
		} else {
			textScorer = t
		}
	} else {
		log.Printf("app: text scoring disabled by config")
	}

	a.pipe.SetScorers(audioScorer, textScorer)
	log.Printf("app: scorers installed audio=%t text=%t", audioScorer != nil, textScorer != nil)
}

func (a *App) buildAudioScorer() (*classify.AudioScorer, error) {
	clf, err := classify.NewAudioClassifier(
		filepath.Join(a.cfg.ModelsDir, a.eng.AudioModelFile),
		filepath.Join(a.cfg.ModelsDir, a.eng.AudioMetaFile),
		a.eng.DistressAudioLabels,
	)
	if err != nil {
		return nil, err
	}
	if clf.Dim() != a.eng.FeatureDim() {
		clf.Close()
		return nil, fmt.Errorf("model expects %d features, engine config yields %d", clf.Dim(), a.eng.FeatureDim())
	}

	trans := &audio.Transcoder{
		FFmpegPath: a.cfg.FFmpegPath,
		SampleRate: a.eng.SampleRate,
		Timeout:    a.cfg.FFmpegTimeout,
	}
	norm := audio.NewNormalizer(trans, a.eng.SampleRate, a.eng.TargetSamples())
	ext := audio.NewExtractor(audio.FeatureConfig{
		SampleRate: a.eng.SampleRate,
		NumMFCC:    a.eng.NumMFCC,
		NumChroma:  a.eng.NumChroma,
		NumMels:    a.eng.NumMels,
		FFTSize:    a.eng.FFTSize,
		HopSize:    a.eng.HopSize,
	})
	return classify.NewAudioScorer(norm, ext, clf), nil
}

func (a *App) buildTextScorer() (*classify.TextClassifier, error) {
	return classify.NewTextClassifier(
		filepath.Join(a.cfg.ModelsDir, a.eng.TextModelFile),
		filepath.Join(a.cfg.ModelsDir, a.eng.TextVocabFile),
		classify.TextOptions{
			CandidateLabels:    a.eng.TextCandidateLabels,
			DistressLabel:      a.eng.DistressTextLabel,
			HypothesisTemplate: a.eng.HypothesisTemplate,
			EntailmentIndex:    a.eng.EntailmentIndex,
		},
	)
}

// Run serves HTTP until ctx is cancelled, then shuts down cleanly.
func (a *App) Run(ctx context.Context) error {
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("app: model watcher stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("app: listening on %s", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("app: shutdown: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("app: close store: %v", err)
	}
	return nil
}
