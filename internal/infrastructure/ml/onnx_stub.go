//go:build !onnx

package ml

import (
	"context"
	"errors"
)

const BackendONNX = "onnx"

type onnxLoader struct{}

func (onnxLoader) Name() string { return BackendONNX }

func (onnxLoader) Load(context.Context, Settings) (Model, error) {
	return nil, errors.New("onnx build tag is not enabled")
}
