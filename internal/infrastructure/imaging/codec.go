package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// DefaultInputSize is the square edge length the classifier expects.
const DefaultInputSize = 224

// DefaultMaxPixels caps width*height declared by an image header. Larger
// images are rejected before any pixel buffer is allocated.
const DefaultMaxPixels int64 = 178_956_970

// ErrTooManyPixels is returned when an image header declares more pixels
// than the codec accepts.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// Option tunes a codec.
type Option func(*options)

type options struct {
	maxPixels int64
}

// WithMaxPixels overrides DefaultMaxPixels. Zero or less keeps the default.
func WithMaxPixels(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPixels = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Backend names accepted by New.
const (
	BackendNative = "native"
	BackendGoCV   = "gocv"
)

// New returns the decoder registered under backend.
func New(backend string, size int, opts ...Option) (ports.ImageDecoder, error) {
	switch backend {
	case "", BackendNative:
		return NewCodec(size, opts...), nil
	case BackendGoCV:
		codec, err := NewGoCVCodec(size, opts...)
		if err != nil {
			return nil, err
		}
		return codec, nil
	default:
		return nil, fmt.Errorf("unknown codec backend %q", backend)
	}
}

// Codec decodes common image formats into a [1,S,S,3] RGB tensor scaled to [0,1].
type Codec struct {
	size      int
	maxPixels int64
}

var _ ports.ImageDecoder = (*Codec)(nil)

func NewCodec(size int, opts ...Option) *Codec {
	if size <= 0 {
		size = DefaultInputSize
	}
	return &Codec{size: size, maxPixels: buildOptions(opts).maxPixels}
}

// Decode is pure: the same bytes always produce the same tensor.
func (c *Codec) Decode(data []byte) (domain.Tensor, error) {
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode image header", err)
	}
	if err := checkPixels(header.Width, header.Height, c.maxPixels); err != nil {
		return domain.Tensor{}, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode image", err)
	}
	if src.Bounds().Empty() {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode image", errors.New("image has no pixels"))
	}

	// Opaque sources are resampled in place; only images carrying alpha
	// need a flattened copy first.
	var rgb image.Image = src
	if o, ok := src.(interface{ Opaque() bool }); !ok || !o.Opaque() {
		rgb = opaqueRGB(src)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, c.size, c.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)

	return toTensor(dst), nil
}

func checkPixels(width, height int, limit int64) error {
	if width <= 0 || height <= 0 {
		return domain.NewError(domain.KindDecode, "decode image header", errors.New("image has no pixels"))
	}
	if int64(width)*int64(height) > limit {
		return domain.NewError(domain.KindDecode, "decode image header",
			fmt.Errorf("%dx%d: %w (limit %d)", width, height, ErrTooManyPixels, limit))
	}
	return nil
}

// opaqueRGB converts any colour model to 8-bit RGB with alpha discarded.
// Grayscale sources end up with three identical channels.
func opaqueRGB(src image.Image) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			px.A = 0xff
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, px)
		}
	}
	return out
}

func toTensor(img *image.NRGBA) domain.Tensor {
	b := img.Bounds()
	t := domain.NewTensor(1, b.Dy(), b.Dx(), 3)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := t.Index4(0, y, x, 0)
			t.Data[i] = float32(row[x*4]) / 255
			t.Data[i+1] = float32(row[x*4+1]) / 255
			t.Data[i+2] = float32(row[x*4+2]) / 255
		}
	}
	return t
}
