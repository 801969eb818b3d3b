package nn

import (
	"fmt"
	"log/slog"

	"github.com/openfluke/equinorm/gpu"
)

// GroupNormForwardGPU runs g on the WebGPU device. It validates exactly as
// Forward does and returns a tensor of the same shape.
func GroupNormForwardGPU(g *GroupNorm[float32], input *Tensor[float32]) (*Tensor[float32], error) {
	plan, err := planGroupNorm(input, g.Weight, g.Bias, g.Rs)
	if err != nil {
		return nil, err
	}
	if plan.batch == 0 || plan.spatial == 0 || len(plan.blocks) == 0 {
		return NewTensor[float32](input.Shape...), nil
	}

	ctx, err := gpu.GetContext()
	if err != nil {
		return nil, fmt.Errorf("gpu group norm: %w", err)
	}

	layer := &gpu.GroupNormLayer{Spec: gpuSpec(g, plan)}
	defer layer.Cleanup()
	if err := gpu.Build(ctx, layer, "GroupNorm"); err != nil {
		return nil, fmt.Errorf("gpu group norm: %w", err)
	}
	slog.Debug("gpu group norm", "rs", g.Rs.String(), "batch", plan.batch, "workgroups", layer.Workgroups())

	out, err := layer.Forward(ctx, input.Data)
	if err != nil {
		return nil, fmt.Errorf("gpu group norm: %w", err)
	}
	return NewTensorFromSlice(out, input.Shape...), nil
}

func gpuSpec(g *GroupNorm[float32], plan *groupNormPlan) gpu.GroupNormSpec {
	spec := gpu.GroupNormSpec{
		Blocks:    make([]gpu.BlockSpec, len(plan.blocks)),
		BatchSize: plan.batch,
		Channels:  plan.channels,
		Spatial:   plan.spatial,
		Epsilon:   float32(g.Epsilon),
	}
	if g.Weight != nil {
		spec.Weight = g.Weight.Data
		if g.Bias != nil {
			spec.Bias = g.Bias.Data
		}
	}
	for i, blk := range plan.blocks {
		spec.Blocks[i] = gpu.BlockSpec{
			Mul:     blk.Mul,
			Dim:     blk.Dim,
			Channel: blk.channel,
			Weight:  blk.weight,
			Bias:    blk.bias,
		}
	}
	return spec
}
