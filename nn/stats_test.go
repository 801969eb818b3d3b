package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeBlocks(t *testing.T) {
	rs := mustRs(t, "1x1,1x3")
	x := NewTensorFromSlice([]float64{
		1, 3, 0, 4, // sample 0
		3, 0, 0, 2, // sample 1
	}, 2, 4, 1, 1, 1)

	stats, err := DescribeBlocks(x, rs)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, 0, stats[0].Block)
	assert.Equal(t, Irrep{1, 1}, stats[0].Irrep)
	assert.InDelta(t, 2, stats[0].Mean, 1e-12)
	assert.InDelta(t, 2, stats[0].RMS, 1e-12)

	assert.Equal(t, Irrep{1, 3}, stats[1].Irrep)
	assert.InDelta(t, (7.0/3+2.0/3)/2, stats[1].Mean, 1e-12)
	assert.InDelta(t, (5+2)/2.0, stats[1].RMS, 1e-12)
}

func TestDescribeBlocksAfterNorm(t *testing.T) {
	rs := mustRs(t, "2x1,2x3")
	g, err := NewGroupNorm[float64](rs, 1e-9, false)
	require.NoError(t, err)

	x := NewTensor[float64](3, 8, 2, 2, 2)
	for i := range x.Data {
		x.Data[i] = math.Sin(float64(i))
	}
	y, err := g.Forward(x)
	require.NoError(t, err)

	stats, err := DescribeBlocks(y, rs)
	require.NoError(t, err)
	for _, s := range stats {
		assert.InDelta(t, 1, s.RMS, 1e-6, "block %d", s.Block)
	}
	assert.InDelta(t, 0, stats[0].Mean, 1e-12)

	_, err = DescribeBlocks(x, mustRs(t, "1x1"))
	assert.ErrorIs(t, err, ErrChannelMismatch)
}
