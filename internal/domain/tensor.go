package domain

import "fmt"

// Tensor is a dense float32 array in row-major (NHWC for images) order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return Tensor{Shape: s, Data: make([]float32, n)}
}

// Len is the number of elements implied by the shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// HasShape reports whether t has exactly the given dimensions.
func (t Tensor) HasShape(shape ...int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i := range shape {
		if t.Shape[i] != shape[i] {
			return false
		}
	}
	return len(t.Data) == t.Len()
}

// Index4 returns the flat offset of element (n, h, w, c) in a rank-4 tensor.
func (t Tensor) Index4(n, h, w, c int) int {
	return ((n*t.Shape[1]+h)*t.Shape[2]+w)*t.Shape[3] + c
}

func (t Tensor) String() string {
	return fmt.Sprintf("tensor%v", t.Shape)
}
