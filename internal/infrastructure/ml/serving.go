package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"DiagnosisWorker/internal/domain"
)

// BackendServing is the registry name of the TensorFlow Serving backend.
const BackendServing = "serving"

// ServingModel talks to a TensorFlow Serving REST endpoint.
type ServingModel struct {
	endpoint string
	name     string
	http     *http.Client
}

var _ Model = (*ServingModel)(nil)

// NewServingModel creates a reusable HTTP client for one served model.
func NewServingModel(endpoint, name string, client *http.Client) *ServingModel {
	if client == nil {
		client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &ServingModel{
		endpoint: strings.TrimRight(endpoint, "/"),
		name:     name,
		http:     client,
	}
}

type modelStatus struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// CheckAvailable fails unless at least one version of the model is AVAILABLE.
func (m *ServingModel) CheckAvailable(ctx context.Context) error {
	var status modelStatus
	if err := m.do(ctx, http.MethodGet, m.modelPath(""), nil, &status); err != nil {
		return fmt.Errorf("model status: %w", err)
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("model %s has no available version", m.name)
}

// Predict sends a single batch and returns the first prediction row.
func (m *ServingModel) Predict(ctx context.Context, input domain.Tensor) ([]float32, error) {
	instances, err := nest4(input)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Predictions [][]float32 `json:"predictions"`
	}
	payload := map[string]any{"instances": instances}
	if err := m.do(ctx, http.MethodPost, m.modelPath(":predict"), payload, &resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	if len(resp.Predictions) != 1 {
		return nil, fmt.Errorf("expected 1 prediction row, got %d", len(resp.Predictions))
	}
	return resp.Predictions[0], nil
}

// Close drops idle connections; the server owns the model itself.
func (m *ServingModel) Close() error {
	m.http.CloseIdleConnections()
	return nil
}

func (m *ServingModel) modelPath(suffix string) string {
	return "/v1/models/" + url.PathEscape(m.name) + suffix
}

func (m *ServingModel) do(ctx context.Context, method, path string, payload any, v any) error {
	var raw []byte
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	body := bytes.NewReader(raw)

	req, err := http.NewRequestWithContext(ctx, method, m.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}

// nest4 reshapes a flat NHWC tensor into the nested lists TF Serving expects.
func nest4(t domain.Tensor) ([][][][]float32, error) {
	if len(t.Shape) != 4 || len(t.Data) != t.Len() {
		return nil, errors.New("serving backend needs a rank-4 tensor")
	}
	n, h, w, c := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]

	out := make([][][][]float32, n)
	for b := 0; b < n; b++ {
		out[b] = make([][][]float32, h)
		for y := 0; y < h; y++ {
			out[b][y] = make([][]float32, w)
			for x := 0; x < w; x++ {
				i := t.Index4(b, y, x, 0)
				out[b][y][x] = t.Data[i : i+c : i+c]
			}
		}
	}
	return out, nil
}

type servingLoader struct{}

func (servingLoader) Name() string { return BackendServing }

func (servingLoader) Load(ctx context.Context, s Settings) (Model, error) {
	if s.ServingURL == "" {
		return nil, errors.New("serving backend needs a serving url")
	}
	name := s.Name
	if name == "" {
		name = "diagnosis"
	}

	model := NewServingModel(s.ServingURL, name, s.HTTPClient)
	if err := model.CheckAvailable(ctx); err != nil {
		return nil, err
	}
	return model, nil
}
