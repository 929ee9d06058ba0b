package classify

import (
	"fmt"
	"math"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initRuntime initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect. The shared library ships
// alongside the model files.
func initRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// inspectModel initializes the runtime and returns the model's declared
// tensor metadata so callers can validate shapes and pick outputs.
func inspectModel(modelPath string) ([]ort.InputOutputInfo, []ort.InputOutputInfo, error) {
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	if err := initRuntime(libPath); err != nil {
		return nil, nil, fmt.Errorf("%w: onnx runtime init: %v", ErrModelUnavailable, err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read model info %s: %v", ErrModelUnavailable, modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, nil, fmt.Errorf("%w: %s declares no inputs or outputs", ErrModelUnavailable, modelPath)
	}
	return inputs, outputs, nil
}

// openSession creates an inference session bound to the given tensor names.
func openSession(modelPath string, inputNames, outputNames []string) (*ort.DynamicAdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", ErrModelUnavailable, err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(2)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: create session %s: %v", ErrModelUnavailable, modelPath, err)
	}
	return session, nil
}

// softmax converts logits into a probability distribution.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - max)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
