//go:build onnx

package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"DiagnosisWorker/internal/domain"
)

// BackendONNX is the registry name of the ONNX Runtime backend.
const BackendONNX = "onnx"

var ortInit sync.Mutex

// ONNXModel runs a local .onnx artifact through ONNX Runtime.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	classes int
}

var _ Model = (*ONNXModel)(nil)

// OpenONNX creates one session for the model at path. The first input and
// first output of the graph are used.
func OpenONNX(path, sharedLibrary string, classes int) (*ONNXModel, error) {
	ortInit.Lock()
	if !ort.IsInitialized() {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortInit.Unlock()
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortInit.Unlock()

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", path, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("model has no inputs or outputs")
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ONNXModel{session: session, classes: classes}, nil
}

func (m *ONNXModel) Predict(_ context.Context, input domain.Tensor) ([]float32, error) {
	dims := make([]int64, len(input.Shape))
	for i, d := range input.Shape {
		dims[i] = int64(d)
	}

	in, err := ort.NewTensor(ort.NewShape(dims...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(m.classes)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	m.mu.Lock()
	err = m.session.Run([]ort.Value{in}, []ort.Value{out})
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	probs := make([]float32, m.classes)
	copy(probs, out.GetData())
	return probs, nil
}

func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}

type onnxLoader struct{}

func (onnxLoader) Name() string { return BackendONNX }

func (onnxLoader) Load(_ context.Context, s Settings) (Model, error) {
	if s.Path == "" {
		return nil, errors.New("onnx backend needs a model path")
	}
	model, err := OpenONNX(s.Path, s.SharedLibraryPath, s.Classes)
	if err != nil {
		return nil, err
	}
	return model, nil
}
