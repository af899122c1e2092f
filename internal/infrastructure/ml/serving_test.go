package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"DiagnosisWorker/internal/domain"
)

func newServingServer(t *testing.T, state string, predictions [][]float32) (*httptest.Server, *[][][][]float32) {
	t.Helper()
	var got [][][][]float32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models/chest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model_version_status":[{"version":"3","state":"` + state + `"}]}`))
	})
	mux.HandleFunc("POST /v1/models/chest:predict", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Instances [][][][]float32 `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got = req.Instances
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": predictions})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestServingBackend_Predict(t *testing.T) {
	srv, got := newServingServer(t, "AVAILABLE", [][]float32{{0.1, 0.7, 0.2}})

	loader, err := DefaultRegistry().Resolve(BackendServing)
	require.NoError(t, err)
	model, err := loader.Load(context.Background(), Settings{Name: "chest", ServingURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	defer model.Close()

	input := domain.NewTensor(1, 2, 2, 3)
	for i := range input.Data {
		input.Data[i] = float32(i) / 12
	}

	probs, err := model.Predict(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.7, 0.2}, probs)

	require.Len(t, *got, 1)
	require.Len(t, (*got)[0], 2)
	require.Equal(t, []float32{9.0 / 12, 10.0 / 12, 11.0 / 12}, (*got)[0][1][1])
}

func TestServingBackend_UnavailableModel(t *testing.T) {
	srv, _ := newServingServer(t, "LOADING", nil)

	_, err := servingLoader{}.Load(context.Background(), Settings{Name: "chest", ServingURL: srv.URL, HTTPClient: srv.Client()})
	require.Error(t, err)
}

func TestServingBackend_BadResponses(t *testing.T) {
	srv, _ := newServingServer(t, "AVAILABLE", [][]float32{{0.5, 0.5, 0}, {0.1, 0.1, 0.8}})
	model := NewServingModel(srv.URL, "chest", srv.Client())

	_, err := model.Predict(context.Background(), domain.NewTensor(1, 2, 2, 3))
	require.Error(t, err)

	_, err = model.Predict(context.Background(), domain.NewTensor(4, 3))
	require.Error(t, err)

	_, err = NewServingModel(srv.URL, "other", srv.Client()).Predict(context.Background(), domain.NewTensor(1, 2, 2, 3))
	require.Error(t, err)
}
