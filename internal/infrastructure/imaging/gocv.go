//go:build gocv

package imaging

import (
	"bytes"
	"errors"
	"image"

	"gocv.io/x/gocv"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// GoCVCodec decodes with OpenCV. Output matches Codec's contract.
type GoCVCodec struct {
	size      int
	maxPixels int64
}

var _ ports.ImageDecoder = (*GoCVCodec)(nil)

func NewGoCVCodec(size int, opts ...Option) (*GoCVCodec, error) {
	if size <= 0 {
		size = DefaultInputSize
	}
	return &GoCVCodec{size: size, maxPixels: buildOptions(opts).maxPixels}, nil
}

func (c *GoCVCodec) Decode(data []byte) (domain.Tensor, error) {
	// Formats Go cannot parse are left to OpenCV; known headers are checked first.
	if header, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := checkPixels(header.Width, header.Height, c.maxPixels); err != nil {
			return domain.Tensor{}, err
		}
	}

	// IMReadColor yields 8-bit BGR with gray replicated and alpha dropped.
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode image", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode image", errors.New("failed to decode image"))
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(c.size, c.size), 0, 0, gocv.InterpolationCubic)

	pix := resized.ToBytes()
	t := domain.NewTensor(1, c.size, c.size, 3)
	if len(pix) != len(t.Data) {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode image", errors.New("unexpected pixel buffer size"))
	}
	for i, v := range pix {
		t.Data[i] = float32(v) / 255
	}
	return t, nil
}
