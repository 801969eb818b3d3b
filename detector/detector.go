// Package detector probes the WebGPU adapter and recommends kernel launch sizes.
package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// BudgetEnv overrides the staging budget, in MiB.
const BudgetEnv = "EQUINORM_BUDGET_MB"

// Report is a portable summary of the adapter and its compute limits.
type Report struct {
	When        string          `json:"when"`
	Backend     string          `json:"backend"`
	AdapterType string          `json:"adapter_type"`
	VendorID    string          `json:"vendor_id_hex"`
	DeviceID    string          `json:"device_id_hex"`
	Name        string          `json:"name"`
	Driver      string          `json:"driver"`
	Limits      Limits          `json:"limits"`
	Recommended Recommendations `json:"recommended"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

type Recommendations struct {
	WorkgroupX uint32 `json:"workgroup_x"`
	WorkgroupY uint32 `json:"workgroup_y"`
	WorkgroupZ uint32 `json:"workgroup_z"`

	// MaxFieldFloats is the largest field a single group norm dispatch can bind.
	MaxFieldFloats uint64 `json:"max_field_floats"`

	// BudgetBytes is a soft limit for staging and temporaries.
	BudgetBytes uint64 `json:"budget_bytes"`
}

// JSON renders the report indented.
func (r *Report) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Detect probes the default high-performance adapter.
func Detect() (*Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("no adapter")
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	l := adapter.GetLimits()
	return &Report{
		When:        time.Now().UTC().Format(time.RFC3339),
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Limits: Limits{
			MaxComputeInvocationsPerWorkgroup: l.Limits.MaxComputeInvocationsPerWorkgroup,
			MaxComputeWorkgroupSizeX:          l.Limits.MaxComputeWorkgroupSizeX,
			MaxComputeWorkgroupsPerDimension:  l.Limits.MaxComputeWorkgroupsPerDimension,
			MaxStorageBufferBindingSize:       l.Limits.MaxStorageBufferBindingSize,
			MaxBufferSize:                     l.Limits.MaxBufferSize,
		},
		Recommended: NewRecommendations(l),
	}, nil
}

// NewRecommendations derives launch sizes and budgets from adapter limits.
func NewRecommendations(l wgpu.SupportedLimits) Recommendations {
	wgX, wgY, wgZ := Recommend(l)

	budget := uint64(128 * 1024 * 1024)
	if mb, err := strconv.Atoi(os.Getenv(BudgetEnv)); err == nil && mb > 0 {
		budget = uint64(mb) * 1024 * 1024
	}
	return Recommendations{
		WorkgroupX:     wgX,
		WorkgroupY:     wgY,
		WorkgroupZ:     wgZ,
		MaxFieldFloats: l.Limits.MaxStorageBufferBindingSize / 4,
		BudgetBytes:    budget,
	}
}

// Recommend picks the largest power-of-two 1D workgroup the limits allow.
func Recommend(l wgpu.SupportedLimits) (x, y, z uint32) {
	maxX := l.Limits.MaxComputeWorkgroupSizeX
	maxTot := l.Limits.MaxComputeInvocationsPerWorkgroup
	for _, c := range []uint32{256, 128, 64, 32, 16, 8, 4, 1} {
		if c <= maxX && c <= maxTot {
			return c, 1, 1
		}
	}
	return 1, 1, 1
}
