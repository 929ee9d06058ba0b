package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewAudioClassifierMissingMeta(t *testing.T) {
	dir := t.TempDir()
	_, err := NewAudioClassifier(filepath.Join(dir, "model.onnx"), filepath.Join(dir, "absent.json"), []string{"fear"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestNewAudioClassifierMalformedMeta(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "meta.json")
	if err := os.WriteFile(meta, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewAudioClassifier(filepath.Join(dir, "model.onnx"), meta, []string{"fear"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestNewAudioClassifierScalerMismatch(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "meta.json")
	body := `{"labels":["fear","calm"],"scaler":{"mean":[0,0],"scale":[1,1,1]}}`
	if err := os.WriteFile(meta, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewAudioClassifier(filepath.Join(dir, "model.onnx"), meta, []string{"fear"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestNewTextClassifierRejectsBadOptions(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.onnx")
	vocab := filepath.Join(dir, "vocab.txt")

	_, err := NewTextClassifier(model, vocab, TextOptions{
		DistressLabel:      "distress",
		HypothesisTemplate: "This text is about %s.",
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("empty candidates: err = %v, want ErrModelUnavailable", err)
	}

	_, err = NewTextClassifier(model, vocab, TextOptions{
		CandidateLabels:    []string{"distress"},
		DistressLabel:      "distress",
		HypothesisTemplate: "no placeholder here",
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("bad template: err = %v, want ErrModelUnavailable", err)
	}
}

// Real-model tests run only when the model files are present; CI and dev
// machines without the ONNX assets skip them.
func realModelsDir(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("MODELS_DIR")
	if dir == "" {
		dir = "../../models"
	}
	if _, err := os.Stat(filepath.Join(dir, "audio_distress.onnx")); err != nil {
		t.Skipf("model files not present in %s", dir)
	}
	return dir
}

func TestAudioClassifierWithRealModel(t *testing.T) {
	dir := realModelsDir(t)
	clf, err := NewAudioClassifier(
		filepath.Join(dir, "audio_distress.onnx"),
		filepath.Join(dir, "audio_distress.json"),
		[]string{"fear", "anger", "disgust"},
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer clf.Close()

	sig, err := clf.Score(make([]float64, clf.Dim()))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", sig.Confidence)
	}
}

func TestTextClassifierWithRealModel(t *testing.T) {
	dir := realModelsDir(t)
	if _, err := os.Stat(filepath.Join(dir, "text_nli.onnx")); err != nil {
		t.Skipf("text model not present in %s", dir)
	}
	clf, err := NewTextClassifier(
		filepath.Join(dir, "text_nli.onnx"),
		filepath.Join(dir, "vocab.txt"),
		TextOptions{
			CandidateLabels:    []string{"distress", "safety check", "neutral"},
			DistressLabel:      "distress",
			HypothesisTemplate: "This text is about %s.",
			EntailmentIndex:    2,
		},
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer clf.Close()

	help, err := clf.Score(context.Background(), "someone is attacking me, please send help now")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	calm, err := clf.Score(context.Background(), "just checking in, everything is fine")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if help.Confidence <= calm.Confidence {
		t.Fatalf("distress text scored %v, calm text %v", help.Confidence, calm.Confidence)
	}
}

func TestNewTextClassifierMissingVocab(t *testing.T) {
	dir := t.TempDir()
	_, err := NewTextClassifier(filepath.Join(dir, "model.onnx"), filepath.Join(dir, "absent.txt"), TextOptions{
		CandidateLabels:    []string{"distress", "neutral"},
		DistressLabel:      "distress",
		HypothesisTemplate: "This text is about %s.",
		EntailmentIndex:    2,
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}
