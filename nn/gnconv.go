package nn

import "fmt"

// Convolution is an equivariant convolution supplied by the caller.
type Convolution[T Numeric] interface {
	Forward(input *Tensor[T]) (*Tensor[T], error)
}

// ConvFactory builds a Convolution from input and output representation
// lists, a kernel size and free-form options.
type ConvFactory[T Numeric] func(rsIn, rsOut Degrees, size int, opts map[string]any) (Convolution[T], error)

// GNConvConfig holds the optional settings of NewGNConvolution.
type GNConvConfig struct {
	// Epsilon of the norm; 0 selects 1e-5.
	Epsilon float64
	// NormRs overrides the norm's representation list. When nil it is
	// derived from rsIn with dimension 2L+1.
	NormRs Rs
	// Options are passed to the convolution factory untouched.
	Options map[string]any
}

// GNConvolution applies an affine GroupNorm and then a convolution.
type GNConvolution[T Numeric] struct {
	Norm *GroupNorm[T]
	Conv Convolution[T]
}

// NewGNConvolution builds the norm and asks factory for the convolution.
func NewGNConvolution[T Numeric](rsIn, rsOut Degrees, size int, factory ConvFactory[T], cfg GNConvConfig) (*GNConvolution[T], error) {
	if factory == nil {
		return nil, fmt.Errorf("gn convolution: nil convolution factory")
	}
	rsNorm := cfg.NormRs
	if rsNorm == nil {
		rsNorm = rsIn.Rs()
	}
	norm, err := NewGroupNorm[T](rsNorm, cfg.Epsilon, true)
	if err != nil {
		return nil, fmt.Errorf("gn convolution norm: %w", err)
	}
	conv, err := factory(rsIn, rsOut, size, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("gn convolution conv: %w", err)
	}
	return &GNConvolution[T]{Norm: norm, Conv: conv}, nil
}

// Forward returns Conv(Norm(input)).
func (c *GNConvolution[T]) Forward(input *Tensor[T]) (*Tensor[T], error) {
	normed, err := c.Norm.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("gn convolution norm: %w", err)
	}
	out, err := c.Conv.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("gn convolution conv: %w", err)
	}
	return out, nil
}
