package ml

import (
	"context"
	"fmt"
	"net/http"
	"sort"
)

// Settings carries everything a backend may need to open a model.
type Settings struct {
	// Name is the served model name (serving backend).
	Name string
	// Path is the model artifact on local disk (onnx backend).
	Path string
	// ServingURL is the base URL of a TensorFlow Serving REST endpoint.
	ServingURL string
	// SharedLibraryPath points at libonnxruntime when it is not on the default search path.
	SharedLibraryPath string
	InputShape        []int
	Classes           int
	HTTPClient        *http.Client
}

// Loader opens one kind of model backend.
type Loader interface {
	Name() string
	Load(ctx context.Context, settings Settings) (Model, error)
}

// Registry keeps a mapping from backend names to their loaders.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: map[string]Loader{}}
}

// DefaultRegistry knows every backend compiled into the binary.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(servingLoader{})
	r.Register(onnxLoader{})
	return r
}

// Register adds or replaces a loader.
func (r *Registry) Register(loader Loader) {
	if r.loaders == nil {
		r.loaders = map[string]Loader{}
	}
	r.loaders[loader.Name()] = loader
}

// Resolve returns a loader by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Loader, error) {
	if loader, ok := r.loaders[name]; ok {
		return loader, nil
	}
	return nil, fmt.Errorf("model backend %s is not registered (have %v)", name, r.names())
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
