package classify

import (
	"context"
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

const nliSeqLen = 128

// TextClassifier performs zero-shot classification of free text against a
// fixed candidate label set using an NLI cross-encoder: each label becomes a
// hypothesis ("This text is about distress.") scored against the input text,
// and entailment logits are softmaxed across labels. Immutable after
// construction, safe for concurrent Score calls.
type TextClassifier struct {
	session    *ort.DynamicAdvancedSession
	tok        *wordpiece
	inputNames []string
	outputName string
	numLogits  int

	candidates    []string
	distressLabel string
	template      string
	entailIdx     int
}

// TextOptions configures the zero-shot candidate set and scoring target.
type TextOptions struct {
	CandidateLabels    []string
	DistressLabel      string
	HypothesisTemplate string // must contain one %s for the label
	EntailmentIndex    int    // index of the entailment logit, typically 2
}

// NewTextClassifier loads the NLI model and vocabulary. Load failures wrap
// ErrModelUnavailable; the text modality is then disabled, never per-request.
func NewTextClassifier(modelPath, vocabPath string, opts TextOptions) (*TextClassifier, error) {
	if len(opts.CandidateLabels) == 0 {
		return nil, fmt.Errorf("%w: no candidate labels configured", ErrModelUnavailable)
	}
	if !strings.Contains(opts.HypothesisTemplate, "%s") {
		return nil, fmt.Errorf("%w: hypothesis template must contain %%s", ErrModelUnavailable)
	}

	tok, err := loadWordpiece(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	inputs, outputs, err := inspectModel(modelPath)
	if err != nil {
		return nil, err
	}

	// BERT-style cross-encoders take input_ids and attention_mask, with
	// token_type_ids marking the hypothesis segment when present.
	have := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		have[in.Name] = true
	}
	inputNames := []string{"input_ids", "attention_mask"}
	if !have["input_ids"] || !have["attention_mask"] {
		return nil, fmt.Errorf("%w: model missing input_ids/attention_mask", ErrModelUnavailable)
	}
	if have["token_type_ids"] {
		inputNames = append(inputNames, "token_type_ids")
	}

	out := outputs[0]
	dims := out.Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: expected [batch, logits] output, got %v", ErrModelUnavailable, dims)
	}
	numLogits := int(dims[1])
	if numLogits <= 0 {
		numLogits = 3 // contradiction, neutral, entailment
	}
	if opts.EntailmentIndex < 0 || opts.EntailmentIndex >= numLogits {
		return nil, fmt.Errorf("%w: entailment index %d out of range for %d logits", ErrModelUnavailable, opts.EntailmentIndex, numLogits)
	}

	session, err := openSession(modelPath, inputNames, []string{out.Name})
	if err != nil {
		return nil, err
	}

	return &TextClassifier{
		session:       session,
		tok:           tok,
		inputNames:    inputNames,
		outputName:    out.Name,
		numLogits:     numLogits,
		candidates:    opts.CandidateLabels,
		distressLabel: opts.DistressLabel,
		template:      opts.HypothesisTemplate,
		entailIdx:     opts.EntailmentIndex,
	}, nil
}

// Score returns the probability assigned to the distress label, zero when the
// label is not among the candidates. Callers treat any error as a zero
// signal; text scoring is best-effort.
func (c *TextClassifier) Score(ctx context.Context, text string) (Signal, error) {
	entail := make([]float64, len(c.candidates))
	for i, label := range c.candidates {
		if err := ctx.Err(); err != nil {
			return ZeroSignal(), err
		}
		logits, err := c.infer(text, fmt.Sprintf(c.template, label))
		if err != nil {
			return ZeroSignal(), err
		}
		entail[i] = logits[c.entailIdx]
	}

	probs := softmax(entail)
	for i, label := range c.candidates {
		if label == c.distressLabel {
			return Signal{Confidence: probs[i], Label: label}, nil
		}
	}
	return ZeroSignal(), nil
}

// infer runs one premise/hypothesis pair and returns the raw logits.
func (c *TextClassifier) infer(premise, hypothesis string) ([]float64, error) {
	ids, mask, typeIDs := c.tok.encodePair(premise, hypothesis, nliSeqLen)
	shape := ort.NewShape(1, nliSeqLen)

	tensors := make([]ort.Value, 0, 3)
	destroy := func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}
	for _, data := range [][]int64{ids, mask, typeIDs}[:len(c.inputNames)] {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			destroy()
			return nil, fmt.Errorf("input tensor: %w", err)
		}
		tensors = append(tensors, t)
	}
	defer destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.numLogits)))
	if err != nil {
		return nil, fmt.Errorf("logit tensor: %w", err)
	}
	defer out.Destroy()

	if err := c.session.Run(tensors, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("text inference: %w", err)
	}

	logits := make([]float64, c.numLogits)
	for i, v := range out.GetData() {
		logits[i] = float64(v)
	}
	return logits, nil
}

// Close releases the inference session.
func (c *TextClassifier) Close() error {
	if c.session != nil {
		return c.session.Destroy()
	}
	return nil
}
