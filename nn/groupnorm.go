package nn

import (
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Group Normalization over representation blocks
// =============================================================================

const defaultGroupNormEpsilon = 1e-5

// GroupNorm normalizes a field [batch, channel, x, y, z] whose channel axis is
// partitioned by Rs. Each block gets one statistic per batch sample: the mean
// over multiplicity and space of the squared norm of its representation
// vectors. Only scalar blocks (Dim == 1) are mean-centered and biased, since
// shifting a higher-dimensional representation does not commute with rotations.
//
// Weight has one entry per multiplicity unit of every block, Bias one per
// multiplicity unit of scalar blocks. Both are nil when Affine is false.
type GroupNorm[T Numeric] struct {
	Rs      Rs
	Epsilon float64
	Affine  bool
	Weight  *Tensor[T]
	Bias    *Tensor[T]

	// Workers > 1 normalizes blocks concurrently.
	Workers int
}

// NewGroupNorm creates the layer. An epsilon of 0 selects 1e-5.
// Entries of zero width are dropped from rs.
func NewGroupNorm[T Numeric](rs Rs, epsilon float64, affine bool) (*GroupNorm[T], error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	epsilon, err := resolveEpsilon(epsilon)
	if err != nil {
		return nil, err
	}
	g := &GroupNorm[T]{
		Rs:      NewRs(rs...),
		Epsilon: epsilon,
		Affine:  affine,
	}
	if affine {
		g.Weight = NewTensor[T](g.Rs.NumMul())
		for i := range g.Weight.Data {
			g.Weight.Data[i] = 1
		}
		g.Bias = NewTensor[T](g.Rs.NumScalarMul())
	}
	slog.Debug("group norm created", "rs", g.Rs.String(), "eps", epsilon, "affine", affine)
	return g, nil
}

// DefaultGroupNorm creates an affine layer with epsilon 1e-5.
func DefaultGroupNorm[T Numeric](rs Rs) (*GroupNorm[T], error) {
	return NewGroupNorm[T](rs, defaultGroupNormEpsilon, true)
}

func (g *GroupNorm[T]) String() string {
	return fmt.Sprintf("GroupNorm(Rs=%s, eps=%g, affine=%t)", g.Rs, g.Epsilon, g.Affine)
}

// Forward normalizes input and returns a new tensor of the same shape.
func (g *GroupNorm[T]) Forward(input *Tensor[T]) (*Tensor[T], error) {
	return groupNormForward(input, g.Weight, g.Bias, g.Rs, g.Epsilon, g.Workers)
}

// Backward returns the gradients of the loss with respect to the input and,
// when affine, to Weight and Bias. input must be the tensor given to Forward.
func (g *GroupNorm[T]) Backward(input, gradOutput *Tensor[T]) (gradInput, gradWeight, gradBias *Tensor[T], err error) {
	return groupNormBackward(input, gradOutput, g.Weight, g.Bias, g.Rs, g.Epsilon, g.Workers)
}

// Parameters returns the learnable vectors by name; empty when not affine.
func (g *GroupNorm[T]) Parameters() map[string]*Tensor[T] {
	params := map[string]*Tensor[T]{}
	if g.Affine {
		params["weight"] = g.Weight
		params["bias"] = g.Bias
	}
	return params
}

// ApplyGradients performs one SGD step on Weight and Bias.
func (g *GroupNorm[T]) ApplyGradients(gradWeight, gradBias *Tensor[T], learningRate float64) error {
	if !g.Affine {
		return nil
	}
	if gradWeight == nil || gradBias == nil ||
		len(gradWeight.Data) != len(g.Weight.Data) || len(gradBias.Data) != len(g.Bias.Data) {
		return fmt.Errorf("apply gradients: %w", ErrParamCount)
	}
	for i, gw := range gradWeight.Data {
		g.Weight.Data[i] -= T(learningRate * float64(gw))
	}
	for i, gb := range gradBias.Data {
		g.Bias.Data[i] -= T(learningRate * float64(gb))
	}
	return nil
}

// GroupNormForward is the functional form of GroupNorm.Forward. A nil weight
// disables the affine transform; bias is then ignored.
func GroupNormForward[T Numeric](input, weight, bias *Tensor[T], rs Rs, epsilon float64) (*Tensor[T], error) {
	epsilon, err := resolveEpsilon(epsilon)
	if err != nil {
		return nil, err
	}
	return groupNormForward(input, weight, bias, NewRs(rs...), epsilon, 1)
}

// GroupNormBackward is the functional form of GroupNorm.Backward.
func GroupNormBackward[T Numeric](input, gradOutput, weight, bias *Tensor[T], rs Rs, epsilon float64) (gradInput, gradWeight, gradBias *Tensor[T], err error) {
	if epsilon, err = resolveEpsilon(epsilon); err != nil {
		return nil, nil, nil, err
	}
	return groupNormBackward(input, gradOutput, weight, bias, NewRs(rs...), epsilon, 1)
}

// resolveEpsilon maps 0 to the default and rejects negative values.
func resolveEpsilon(epsilon float64) (float64, error) {
	switch {
	case epsilon < 0:
		return 0, fmt.Errorf("%w: got %g", ErrEpsilon, epsilon)
	case epsilon == 0:
		return defaultGroupNormEpsilon, nil
	}
	return epsilon, nil
}

// block is an Rs entry with its offsets into the channel axis and the
// parameter vectors. weight and bias are -1 when the block has none.
type block struct {
	Irrep
	channel int
	weight  int
	bias    int
}

// layout walks rs with running offsets and returns the totals consumed.
func layout(rs Rs, affine bool) (blocks []block, channels, weights, biases int) {
	blocks = make([]block, len(rs))
	for i, ir := range rs {
		b := block{Irrep: ir, channel: channels, weight: -1, bias: -1}
		channels += ir.Width()
		if affine {
			b.weight = weights
			weights += ir.Mul
			if ir.IsScalar() {
				b.bias = biases
				biases += ir.Mul
			}
		}
		blocks[i] = b
	}
	return blocks, channels, weights, biases
}

// groupNormPlan validates input and parameters against rs before any work is done.
type groupNormPlan struct {
	blocks   []block
	batch    int
	channels int
	spatial  int
}

func planGroupNorm[T Numeric](input, weight, bias *Tensor[T], rs Rs) (*groupNormPlan, error) {
	if input == nil || len(input.Shape) != 5 {
		var shape []int
		if input != nil {
			shape = input.Shape
		}
		return nil, fmt.Errorf("%w: got shape %v", ErrShape, shape)
	}
	if len(input.Data) != shapeSize(input.Shape) {
		return nil, fmt.Errorf("%w: %d elements for shape %v", ErrShape, len(input.Data), input.Shape)
	}

	affine := weight != nil
	blocks, channels, weights, biases := layout(rs, affine)
	if channels != input.Shape[1] {
		return nil, fmt.Errorf("%w: Rs %s covers %d channels, input has %d", ErrChannelMismatch, rs, channels, input.Shape[1])
	}
	if affine {
		nb := 0
		if bias != nil {
			nb = len(bias.Data)
		}
		if weights != len(weight.Data) || biases != nb {
			return nil, fmt.Errorf("%w: Rs %s consumes %d weights and %d biases, have %d and %d",
				ErrParamCount, rs, weights, biases, len(weight.Data), nb)
		}
	}

	return &groupNormPlan{
		blocks:   blocks,
		batch:    input.Shape[0],
		channels: channels,
		spatial:  input.spatial(),
	}, nil
}

// each runs fn for every block, concurrently when workers > 1. Blocks own
// disjoint channel and parameter ranges.
func (p *groupNormPlan) each(workers int, fn func(blk block)) {
	if workers <= 1 || len(p.blocks) < 2 {
		for _, blk := range p.blocks {
			fn(blk)
		}
		return
	}
	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, blk := range p.blocks {
		eg.Go(func() error {
			fn(blk)
			return nil
		})
	}
	_ = eg.Wait()
}

func groupNormForward[T Numeric](input, weight, bias *Tensor[T], rs Rs, epsilon float64, workers int) (*Tensor[T], error) {
	plan, err := planGroupNorm(input, weight, bias, rs)
	if err != nil {
		return nil, err
	}

	var w, b []T
	if weight != nil {
		w = weight.Data
		if bias != nil {
			b = bias.Data
		}
	}

	output := NewTensor[T](input.Shape...)
	plan.each(workers, func(blk block) {
		forwardBlock(input.Data, output.Data, plan, blk, w, b, epsilon)
	})
	return output, nil
}

// blockStats returns the mean subtracted from the block (0 unless scalar) and
// the scale r = (q + eps)^-1/2 for one batch sample.
func blockStats[T Numeric](src []T, blk block, spatial int, epsilon float64) (mean, r float64) {
	if blk.IsScalar() {
		for _, v := range src {
			mean += float64(v)
		}
		mean /= float64(len(src))
	}

	var sumSq float64
	for _, v := range src {
		c := float64(v) - mean
		sumSq += c * c
	}
	// Sum over Dim, mean over Mul and space.
	q := sumSq / float64(blk.Mul*spatial)
	return mean, math.Pow(q+epsilon, -0.5)
}

func forwardBlock[T Numeric](in, out []T, plan *groupNormPlan, blk block, weight, bias []T, epsilon float64) {
	n := blk.Width() * plan.spatial
	unit := blk.Dim * plan.spatial

	for b := 0; b < plan.batch; b++ {
		base := (b*plan.channels + blk.channel) * plan.spatial
		src := in[base : base+n]
		dst := out[base : base+n]

		mean, r := blockStats(src, blk, plan.spatial, epsilon)

		for u := 0; u < blk.Mul; u++ {
			scale := r
			if weight != nil {
				scale *= float64(weight[blk.weight+u])
			}
			shift := 0.0
			if bias != nil && blk.bias >= 0 {
				shift = float64(bias[blk.bias+u])
			}
			for i := u * unit; i < (u+1)*unit; i++ {
				dst[i] = T((float64(src[i])-mean)*scale + shift)
			}
		}
	}
}

func groupNormBackward[T Numeric](input, gradOutput, weight, bias *Tensor[T], rs Rs, epsilon float64, workers int) (gradInput, gradWeight, gradBias *Tensor[T], err error) {
	plan, err := planGroupNorm(input, weight, bias, rs)
	if err != nil {
		return nil, nil, nil, err
	}
	if gradOutput == nil || len(gradOutput.Data) != len(input.Data) {
		return nil, nil, nil, fmt.Errorf("%w: gradient does not match input shape %v", ErrShape, input.Shape)
	}

	var w, gw, gb []T
	if weight != nil {
		w = weight.Data
		gradWeight = NewTensor[T](len(weight.Data))
		nb := 0
		if bias != nil {
			nb = len(bias.Data)
		}
		gradBias = NewTensor[T](nb)
		gw, gb = gradWeight.Data, gradBias.Data
	}

	gradInput = NewTensor[T](input.Shape...)
	plan.each(workers, func(blk block) {
		backwardBlock(input.Data, gradOutput.Data, gradInput.Data, plan, blk, w, gw, gb, epsilon)
	})
	return gradInput, gradWeight, gradBias, nil
}

// backwardBlock differentiates y = (x - mean) * r * w + bias where
// r = (sum(c^2)/(Mul*S) + eps)^-1/2 and c = x - mean.
func backwardBlock[T Numeric](in, gradOut, gradIn []T, plan *groupNormPlan, blk block, weight, gradWeight, gradBias []T, epsilon float64) {
	n := blk.Width() * plan.spatial
	unit := blk.Dim * plan.spatial
	count := float64(blk.Mul * plan.spatial)
	dc := make([]float64, n)

	for b := 0; b < plan.batch; b++ {
		base := (b*plan.channels + blk.channel) * plan.spatial
		src := in[base : base+n]
		g := gradOut[base : base+n]
		dst := gradIn[base : base+n]

		mean, r := blockStats(src, blk, plan.spatial, epsilon)

		// A = dL/dr
		var a float64
		for u := 0; u < blk.Mul; u++ {
			wu := 1.0
			if weight != nil {
				wu = float64(weight[blk.weight+u])
			}
			var gc, gs float64
			for i := u * unit; i < (u+1)*unit; i++ {
				gi := float64(g[i])
				gc += gi * (float64(src[i]) - mean)
				gs += gi
			}
			a += wu * gc
			if gradWeight != nil {
				gradWeight[blk.weight+u] += T(gc * r)
				if blk.bias >= 0 {
					gradBias[blk.bias+u] += T(gs)
				}
			}
		}

		coef := a * r * r * r / count
		var dcMean float64
		for u := 0; u < blk.Mul; u++ {
			wu := 1.0
			if weight != nil {
				wu = float64(weight[blk.weight+u])
			}
			for i := u * unit; i < (u+1)*unit; i++ {
				c := float64(src[i]) - mean
				dc[i] = float64(g[i])*wu*r - coef*c
				dcMean += dc[i]
			}
		}

		if !blk.IsScalar() {
			dcMean = 0
		} else {
			dcMean /= float64(n)
		}
		for i := range dst {
			dst[i] = T(dc[i] - dcMean)
		}
	}
}
