package nn

// Numeric is the element type constraint for field tensors.
type Numeric interface {
	~float32 | ~float64
}

// Tensor is a dense row-major array.
type Tensor[T Numeric] struct {
	Data  []T
	Shape []int
}

// NewTensor allocates a zeroed tensor with the given shape.
func NewTensor[T Numeric](shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Data:  make([]T, shapeSize(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewTensorFromSlice wraps data without copying it.
func NewTensorFromSlice[T Numeric](data []T, shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Data:  data,
		Shape: append([]int(nil), shape...),
	}
}

// Size returns the number of elements.
func (t *Tensor[T]) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	data := make([]T, len(t.Data))
	copy(data, t.Data)
	return &Tensor[T]{Data: data, Shape: append([]int(nil), t.Shape...)}
}

// Reshape returns a view sharing the same data, or nil if the element count differs.
func (t *Tensor[T]) Reshape(shape ...int) *Tensor[T] {
	if shapeSize(shape) != len(t.Data) {
		return nil
	}
	return &Tensor[T]{Data: t.Data, Shape: append([]int(nil), shape...)}
}

// spatial returns the product of the axes after the channel axis.
func (t *Tensor[T]) spatial() int {
	if len(t.Shape) < 2 {
		return 1
	}
	return shapeSize(t.Shape[2:])
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
