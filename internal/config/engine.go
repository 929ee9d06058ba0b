package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Engine captures the scoring parameters shared between the offline training
// procedure and the online inference path. The feature layout fields (sample
// rate, duration, coefficient counts) must match the values the models were
// trained with, or classification output is meaningless. The fields can be
// customized via engine.yaml (JSON is also accepted because it is a subset of
// YAML 1.2).
type Engine struct {
	SampleRate     int     `json:"sample_rate" yaml:"sample_rate"`
	TargetDuration float64 `json:"target_duration" yaml:"target_duration"`
	NumMFCC        int     `json:"n_mfcc" yaml:"n_mfcc"`
	NumChroma      int     `json:"n_chroma" yaml:"n_chroma"`
	NumMels        int     `json:"n_mels" yaml:"n_mels"`
	FFTSize        int     `json:"n_fft" yaml:"n_fft"`
	HopSize        int     `json:"hop_length" yaml:"hop_length"`

	DistressAudioLabels []string `json:"distress_audio_labels" yaml:"distress_audio_labels"`
	TextCandidateLabels []string `json:"text_candidate_labels" yaml:"text_candidate_labels"`
	DistressTextLabel   string   `json:"distress_text_label" yaml:"distress_text_label"`
	HypothesisTemplate  string   `json:"hypothesis_template" yaml:"hypothesis_template"`
	EntailmentIndex     int      `json:"entailment_index" yaml:"entailment_index"`

	HighThreshold   float64 `json:"high_threshold" yaml:"high_threshold"`
	MediumThreshold float64 `json:"medium_threshold" yaml:"medium_threshold"`

	AudioModelFile string `json:"audio_model_file" yaml:"audio_model_file"`
	AudioMetaFile  string `json:"audio_meta_file" yaml:"audio_meta_file"`
	TextModelFile  string `json:"text_model_file" yaml:"text_model_file"`
	TextVocabFile  string `json:"text_vocab_file" yaml:"text_vocab_file"`
}

// DefaultEngine returns the baked-in scoring parameters. They mirror the
// configuration the shipped models were trained against.
func DefaultEngine() Engine {
	return Engine{
		SampleRate:     22050,
		TargetDuration: 3.0,
		NumMFCC:        40,
		NumChroma:      12,
		NumMels:        128,
		FFTSize:        2048,
		HopSize:        512,

		DistressAudioLabels: []string{"fear", "anger", "disgust"},
		TextCandidateLabels: []string{"distress", "safety check", "neutral"},
		DistressTextLabel:   "distress",
		HypothesisTemplate:  "This text is about %s.",
		EntailmentIndex:     2,

		HighThreshold:   0.85,
		MediumThreshold: 0.50,

		AudioModelFile: "audio_distress.onnx",
		AudioMetaFile:  "audio_distress.json",
		TextModelFile:  "text_nli.onnx",
		TextVocabFile:  "vocab.txt",
	}
}

// LoadEngine returns defaults overlaid with the YAML file at path, when set.
func LoadEngine(path string) (Engine, error) {
	eng := DefaultEngine()
	if path == "" {
		return eng, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return eng, fmt.Errorf("engine config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &eng); err != nil {
		return eng, fmt.Errorf("engine config: %w", err)
	}
	return eng, eng.Validate()
}

// Validate rejects parameter combinations the extractor cannot honor.
func (e Engine) Validate() error {
	switch {
	case e.SampleRate <= 0:
		return errors.New("engine config: sample_rate must be positive")
	case e.TargetDuration <= 0:
		return errors.New("engine config: target_duration must be positive")
	case e.NumMFCC <= 0 || e.NumChroma <= 0 || e.NumMels <= 0:
		return errors.New("engine config: coefficient counts must be positive")
	case e.NumMFCC > e.NumMels:
		return errors.New("engine config: n_mfcc cannot exceed n_mels")
	case e.FFTSize <= 0 || e.FFTSize&(e.FFTSize-1) != 0:
		return errors.New("engine config: n_fft must be a positive power of two")
	case e.HopSize <= 0 || e.HopSize > e.FFTSize:
		return errors.New("engine config: hop_length must be in (0, n_fft]")
	case e.MediumThreshold <= 0 || e.HighThreshold <= e.MediumThreshold || e.HighThreshold > 1:
		return errors.New("engine config: thresholds must satisfy 0 < medium < high <= 1")
	case len(e.TextCandidateLabels) == 0:
		return errors.New("engine config: text_candidate_labels must not be empty")
	}
	return nil
}

// FeatureDim is the length of the extracted feature vector: mean and stdev
// for each MFCC, chroma, and mel coefficient.
func (e Engine) FeatureDim() int {
	return 2 * (e.NumMFCC + e.NumChroma + e.NumMels)
}

// TargetSamples is the exact canonical waveform length in samples.
func (e Engine) TargetSamples() int {
	return int(e.TargetDuration*float64(e.SampleRate) + 0.5)
}
