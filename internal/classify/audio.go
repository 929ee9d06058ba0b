package classify

import (
	"encoding/json"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// audioMeta is the JSON sidecar exported by the training procedure alongside
// the ONNX model: the class label order of the probability output and the
// fitted scaler parameters.
type audioMeta struct {
	Labels []string `json:"labels"`
	Scaler struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
}

// AudioClassifier scores feature vectors with a pre-trained probabilistic
// classifier. The feature scaler is applied before inference; its parameters
// are fixed at load time and never refit. Immutable after construction and
// safe for concurrent Score calls.
type AudioClassifier struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	dim        int
	labels     []string
	mean       []float64
	scale      []float64
	distress   map[string]bool
}

// NewAudioClassifier loads the ONNX model and its metadata sidecar. Any load
// failure wraps ErrModelUnavailable; callers treat that as the audio modality
// being disabled, not as a fatal error.
func NewAudioClassifier(modelPath, metaPath string, distressLabels []string) (*AudioClassifier, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: audio metadata: %v", ErrModelUnavailable, err)
	}
	var meta audioMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: audio metadata: %v", ErrModelUnavailable, err)
	}
	if len(meta.Labels) == 0 {
		return nil, fmt.Errorf("%w: audio metadata declares no labels", ErrModelUnavailable)
	}
	if len(meta.Scaler.Mean) == 0 || len(meta.Scaler.Mean) != len(meta.Scaler.Scale) {
		return nil, fmt.Errorf("%w: audio metadata scaler is malformed", ErrModelUnavailable)
	}

	inputs, outputs, err := inspectModel(modelPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: expected single feature input, model has %d", ErrModelUnavailable, len(inputs))
	}
	in := inputs[0]
	if len(in.Dimensions) != 2 {
		return nil, fmt.Errorf("%w: expected 2D feature input, got %v", ErrModelUnavailable, in.Dimensions)
	}
	dim := int(in.Dimensions[1])
	if dim > 0 && dim != len(meta.Scaler.Mean) {
		return nil, fmt.Errorf("%w: model expects %d features, scaler fitted for %d", ErrModelUnavailable, dim, len(meta.Scaler.Mean))
	}
	if dim <= 0 {
		dim = len(meta.Scaler.Mean)
	}

	// Converted sklearn models expose a class index output next to the
	// probability tensor; bind the probabilities.
	outputName := outputs[0].Name
	for _, out := range outputs {
		if out.Name == "probabilities" {
			outputName = out.Name
			break
		}
	}

	session, err := openSession(modelPath, []string{in.Name}, []string{outputName})
	if err != nil {
		return nil, err
	}

	distress := make(map[string]bool, len(distressLabels))
	for _, l := range distressLabels {
		distress[l] = true
	}
	return &AudioClassifier{
		session:    session,
		inputName:  in.Name,
		outputName: outputName,
		dim:        dim,
		labels:     meta.Labels,
		mean:       meta.Scaler.Mean,
		scale:      meta.Scaler.Scale,
		distress:   distress,
	}, nil
}

// Dim reports the feature vector length the model was trained on.
func (c *AudioClassifier) Dim() int { return c.dim }

// Score scales the feature vector, runs inference, and returns the highest
// probability among the configured distress labels. When none of the
// configured labels appear in the model's label set, the signal is zero with
// label "N/A" — a known fragility kept on purpose.
func (c *AudioClassifier) Score(features []float64) (Signal, error) {
	if len(features) != c.dim {
		return ZeroSignal(), fmt.Errorf("feature vector length %d, model expects %d", len(features), c.dim)
	}

	scaled := make([]float32, c.dim)
	for i, v := range features {
		s := c.scale[i]
		if s == 0 {
			s = 1
		}
		scaled[i] = float32((v - c.mean[i]) / s)
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(c.dim)), scaled)
	if err != nil {
		return ZeroSignal(), fmt.Errorf("feature tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(c.labels))))
	if err != nil {
		return ZeroSignal(), fmt.Errorf("probability tensor: %w", err)
	}
	defer out.Destroy()

	if err := c.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return ZeroSignal(), fmt.Errorf("audio inference: %w", err)
	}

	probs := make([]float64, len(c.labels))
	for i, p := range out.GetData() {
		probs[i] = float64(p)
	}
	return pickDistress(c.labels, probs, c.distress), nil
}

// Close releases the inference session.
func (c *AudioClassifier) Close() error {
	if c.session != nil {
		return c.session.Destroy()
	}
	return nil
}

// pickDistress selects the single highest probability among the configured
// distress labels.
func pickDistress(labels []string, probs []float64, distress map[string]bool) Signal {
	sig := ZeroSignal()
	for i, label := range labels {
		if i >= len(probs) || !distress[label] {
			continue
		}
		if probs[i] > sig.Confidence {
			sig = Signal{Confidence: probs[i], Label: label}
		}
	}
	return sig
}
