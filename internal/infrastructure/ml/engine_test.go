package ml

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"DiagnosisWorker/internal/domain"
)

type fakeModel struct {
	out    []float32
	err    error
	calls  int
	closed bool
}

func (m *fakeModel) Predict(context.Context, domain.Tensor) ([]float32, error) {
	m.calls++
	return m.out, m.err
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

func requireInferenceError(t *testing.T, err error) {
	t.Helper()
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	require.Equal(t, domain.KindInference, kind)
}

func TestEngine_PassesProbabilitiesThrough(t *testing.T) {
	model := &fakeModel{out: []float32{0.2, 0.5, 0.3}}
	engine := NewEngine(model, []int{1, 4, 4, 3}, 3)

	probs, err := engine.Classify(context.Background(), domain.NewTensor(1, 4, 4, 3))
	require.NoError(t, err)
	require.Equal(t, []float32{0.2, 0.5, 0.3}, probs)

	require.NoError(t, engine.Close())
	require.True(t, model.closed)
}

func TestEngine_RejectsWrongInputShape(t *testing.T) {
	model := &fakeModel{out: []float32{1, 0, 0}}
	engine := NewEngine(model, []int{1, 224, 224, 3}, 3)

	_, err := engine.Classify(context.Background(), domain.NewTensor(1, 224, 224, 1))
	require.ErrorIs(t, err, domain.ErrShapeMismatch)
	requireInferenceError(t, err)
	require.Zero(t, model.calls)
}

func TestEngine_RejectsWrongClassCount(t *testing.T) {
	engine := NewEngine(&fakeModel{out: []float32{0.5, 0.5}}, []int{1, 2, 2, 3}, 3)

	_, err := engine.Classify(context.Background(), domain.NewTensor(1, 2, 2, 3))
	require.ErrorIs(t, err, domain.ErrClassCountMismatch)
	requireInferenceError(t, err)
}

func TestEngine_WrapsBackendErrors(t *testing.T) {
	engine := NewEngine(&fakeModel{err: errors.New("session crashed")}, []int{1, 2, 2, 3}, 3)

	_, err := engine.Classify(context.Background(), domain.NewTensor(1, 2, 2, 3))
	requireInferenceError(t, err)
}

type staticLoader struct{ model Model }

func (staticLoader) Name() string { return "static" }

func (l staticLoader) Load(context.Context, Settings) (Model, error) { return l.model, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(staticLoader{model: &fakeModel{out: []float32{1, 0, 0}}})

	engine, err := Load(context.Background(), r, "static", Settings{InputShape: []int{1, 2, 2, 3}, Classes: 3})
	require.NoError(t, err)
	_, err = engine.Classify(context.Background(), domain.NewTensor(1, 2, 2, 3))
	require.NoError(t, err)

	_, err = Load(context.Background(), r, "tflite", Settings{})
	require.Error(t, err)

	defaults := DefaultRegistry()
	_, err = defaults.Resolve(BackendServing)
	require.NoError(t, err)
	_, err = defaults.Resolve(BackendONNX)
	require.NoError(t, err)
}
