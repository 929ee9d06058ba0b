package classify

import (
	"context"

	"sos_engine/internal/audio"
)

// AudioScorer runs the full audio path: normalize the uploaded clip to the
// canonical waveform, extract the fixed-layout feature vector, classify.
type AudioScorer struct {
	norm *audio.Normalizer
	ext  *audio.Extractor
	clf  *AudioClassifier
}

func NewAudioScorer(norm *audio.Normalizer, ext *audio.Extractor, clf *AudioClassifier) *AudioScorer {
	return &AudioScorer{norm: norm, ext: ext, clf: clf}
}

// Score decodes and scores the audio file at path. Errors are degraded-mode
// inputs for the caller, never fatal to the surrounding request.
func (s *AudioScorer) Score(ctx context.Context, path string) (Signal, error) {
	wave, err := s.norm.Normalize(ctx, path)
	if err != nil {
		return ZeroSignal(), err
	}
	return s.clf.Score(s.ext.Extract(wave))
}
