//go:build !gocv

package imaging

import (
	"errors"

	"DiagnosisWorker/internal/domain"
)

type GoCVCodec struct{}

// NewGoCVCodec fails when the binary was built without OpenCV.
func NewGoCVCodec(int, ...Option) (*GoCVCodec, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

func (c *GoCVCodec) Decode([]byte) (domain.Tensor, error) {
	return domain.Tensor{}, errors.New("gocv build tag is not enabled")
}
