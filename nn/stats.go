package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BlockStat summarizes one representation block of a field, averaged over the batch.
type BlockStat struct {
	Block int
	Irrep Irrep
	// Mean of all block entries.
	Mean float64
	// RMS is the square root of the norm statistic: the squared norm over
	// Dim, averaged over Mul and space, without centering or epsilon.
	RMS float64
}

// DescribeBlocks computes per-block statistics of a [batch, channel, x, y, z] field.
func DescribeBlocks[T Numeric](t *Tensor[T], rs Rs) ([]BlockStat, error) {
	plan, err := planGroupNorm[T](t, nil, nil, NewRs(rs...))
	if err != nil {
		return nil, err
	}

	out := make([]BlockStat, len(plan.blocks))
	means := make([]float64, plan.batch)
	norms := make([]float64, plan.batch)
	for i, blk := range plan.blocks {
		out[i] = BlockStat{Block: i, Irrep: blk.Irrep}
		if plan.batch == 0 {
			continue
		}

		n := blk.Width() * plan.spatial
		buf := make([]float64, n)
		for b := 0; b < plan.batch; b++ {
			base := (b*plan.channels + blk.channel) * plan.spatial
			for j, v := range t.Data[base : base+n] {
				buf[j] = float64(v)
			}
			means[b] = stat.Mean(buf, nil)
			norms[b] = math.Sqrt(floats.Dot(buf, buf) / float64(blk.Mul*plan.spatial))
		}
		out[i].Mean = stat.Mean(means, nil)
		out[i].RMS = stat.Mean(norms, nil)
	}
	return out, nil
}
