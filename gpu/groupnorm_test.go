package gpu

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() GroupNormSpec {
	return GroupNormSpec{
		Blocks: []BlockSpec{
			{Mul: 2, Dim: 1, Channel: 0, Weight: 0, Bias: 0},
			{Mul: 1, Dim: 3, Channel: 2, Weight: 2, Bias: NoParam},
		},
		BatchSize: 3,
		Channels:  5,
		Spatial:   8,
		Epsilon:   1e-5,
		Weight:    []float32{1, 1, 1},
		Bias:      []float32{0, 0},
	}
}

func TestGroupNormSpecValidate(t *testing.T) {
	require.NoError(t, testSpec().Validate())

	s := testSpec()
	s.Channels = 6
	assert.Error(t, s.Validate())

	s = testSpec()
	s.Blocks[1].Channel = 3
	assert.Error(t, s.Validate())

	s = testSpec()
	s.Weight = s.Weight[:2]
	assert.Error(t, s.Validate())

	s = testSpec()
	s.Bias = nil
	assert.Error(t, s.Validate())

	s = testSpec()
	s.BatchSize = 0
	assert.Error(t, s.Validate())
}

func TestGroupNormBlockTable(t *testing.T) {
	assert.Equal(t, []uint32{
		2, 1, 0, 0, 0,
		1, 3, 2, 2, math.MaxUint32,
	}, testSpec().blockTable())
}

func TestGroupNormShader(t *testing.T) {
	l := &GroupNormLayer{Spec: testSpec(), WorkgroupX: 128}
	src := l.GenerateShader()
	for _, want := range []string{
		"const BATCH: u32 = 3u;",
		"const CHANNELS: u32 = 5u;",
		"const SPATIAL: u32 = 8u;",
		"const NBLOCKS: u32 = 2u;",
		"const EPS: f32 = 1e-05;",
		"@workgroup_size(128)",
		"let b = idx % BATCH;",
	} {
		assert.True(t, strings.Contains(src, want), "shader missing %q", want)
	}
	assert.Equal(t, 120, l.Size())
}

func TestGroupNormWorkgroups(t *testing.T) {
	l := &GroupNormLayer{Spec: testSpec()}
	assert.Equal(t, uint32(1), l.Workgroups())

	l.Spec.BatchSize = 100
	assert.Equal(t, uint32(4), l.Workgroups()) // 200 invocations, 64 per group

	l.WorkgroupX = 256
	assert.Equal(t, uint32(1), l.Workgroups())
}

func TestMaxAbsDiff(t *testing.T) {
	assert.Equal(t, float32(0), MaxAbsDiff(nil, nil))
	assert.Equal(t, float32(0.5), MaxAbsDiff([]float32{1, 2, 3}, []float32{1, 2.5, 2.75}))
	assert.True(t, math.IsInf(float64(MaxAbsDiff([]float32{1}, nil)), 1))
}

func TestGroupNormLayerOnDevice(t *testing.T) {
	ctx, err := GetContext()
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}

	spec := testSpec()
	spec.Weight = []float32{2, 1, 0.5}
	spec.Bias = []float32{0.25, -1}
	l := &GroupNormLayer{Spec: spec}
	defer l.Cleanup()
	require.NoError(t, Build(ctx, l, "GroupNormTest"))

	input := make([]float32, l.Size())
	for i := range input {
		input[i] = float32(math.Sin(float64(i) * 0.37))
	}
	out, err := l.Forward(ctx, input)
	require.NoError(t, err)
	require.Len(t, out, len(input))

	// Scalar block of sample 0: centered, unit mean square before the affine map.
	s := spec.Spatial
	var sum, sumSq float64
	for u := 0; u < 2; u++ {
		for i := u * s; i < (u+1)*s; i++ {
			v := (float64(out[i]) - float64(spec.Bias[u])) / float64(spec.Weight[u])
			sum += v
			sumSq += v * v
		}
	}
	assert.InDelta(t, 0, sum/float64(2*s), 1e-4)
	assert.InDelta(t, 1, sumSq/float64(2*s), 1e-3)
}
