package detector

import (
	"encoding/json"
	"testing"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limits(x, total uint32, binding uint64) wgpu.SupportedLimits {
	return wgpu.SupportedLimits{Limits: wgpu.Limits{
		MaxComputeWorkgroupSizeX:          x,
		MaxComputeInvocationsPerWorkgroup: total,
		MaxStorageBufferBindingSize:       binding,
	}}
}

func TestRecommend(t *testing.T) {
	cases := []struct {
		x, total uint32
		want     uint32
	}{
		{1024, 1024, 256},
		{256, 128, 128},
		{64, 256, 64},
		{48, 48, 32},
		{0, 0, 1},
	}
	for _, tc := range cases {
		x, y, z := Recommend(limits(tc.x, tc.total, 0))
		assert.Equal(t, tc.want, x, "limits %d/%d", tc.x, tc.total)
		assert.Equal(t, uint32(1), y)
		assert.Equal(t, uint32(1), z)
	}
}

func TestNewRecommendations(t *testing.T) {
	t.Setenv(BudgetEnv, "")
	r := NewRecommendations(limits(256, 256, 1<<20))
	assert.Equal(t, uint32(256), r.WorkgroupX)
	assert.Equal(t, uint64(1<<18), r.MaxFieldFloats)
	assert.Equal(t, uint64(128<<20), r.BudgetBytes)

	t.Setenv(BudgetEnv, "64")
	r = NewRecommendations(limits(256, 256, 1<<20))
	assert.Equal(t, uint64(64<<20), r.BudgetBytes)

	t.Setenv(BudgetEnv, "lots")
	r = NewRecommendations(limits(256, 256, 1<<20))
	assert.Equal(t, uint64(128<<20), r.BudgetBytes)
}

func TestReportJSON(t *testing.T) {
	r := &Report{Name: "test adapter", Recommended: Recommendations{WorkgroupX: 64}}
	s, err := r.JSON()
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &back))
	assert.Equal(t, "test adapter", back["name"])
	assert.Equal(t, float64(64), back["recommended"].(map[string]any)["workgroup_x"])
}
