package ml

import (
	"context"
	"fmt"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// Model is a loaded backend. Predict must not mutate input.
type Model interface {
	Predict(ctx context.Context, input domain.Tensor) ([]float32, error)
	Close() error
}

// Engine validates tensors around a Model. It is built once at startup and
// only read afterwards.
type Engine struct {
	model      Model
	inputShape []int
	classes    int
}

var _ ports.Classifier = (*Engine)(nil)

func NewEngine(model Model, inputShape []int, classes int) *Engine {
	shape := make([]int, len(inputShape))
	copy(shape, inputShape)
	return &Engine{model: model, inputShape: shape, classes: classes}
}

// Load resolves backend from registry, opens the model and wraps it.
func Load(ctx context.Context, registry *Registry, backend string, settings Settings) (*Engine, error) {
	loader, err := registry.Resolve(backend)
	if err != nil {
		return nil, err
	}

	model, err := loader.Load(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", backend, err)
	}
	return NewEngine(model, settings.InputShape, settings.Classes), nil
}

// Classify returns one probability per class. Outputs are passed through
// unchanged apart from the length check.
func (e *Engine) Classify(ctx context.Context, input domain.Tensor) ([]float32, error) {
	if !input.HasShape(e.inputShape...) {
		return nil, domain.NewError(domain.KindInference, "classify",
			fmt.Errorf("%w: got %v, want %v", domain.ErrShapeMismatch, input.Shape, e.inputShape))
	}

	probs, err := e.model.Predict(ctx, input)
	if err != nil {
		return nil, domain.NewError(domain.KindInference, "predict", err)
	}

	if len(probs) != e.classes {
		return nil, domain.NewError(domain.KindInference, "classify",
			fmt.Errorf("%w: model returned %d values for %d classes", domain.ErrClassCountMismatch, len(probs), e.classes))
	}
	return probs, nil
}

// Close releases the underlying model.
func (e *Engine) Close() error {
	return e.model.Close()
}
