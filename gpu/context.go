package gpu

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/openfluke/equinorm/detector"
	"github.com/openfluke/webgpu/wgpu"
)

// Context holds the single WebGPU context for the process
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Limits   wgpu.SupportedLimits

	// WorkgroupX is the 1D workgroup size kernels are compiled with.
	WorkgroupX uint32

	once sync.Once
}

var ctx Context

// GetContext returns the singleton GPU context, initializing it if necessary
func GetContext() (*Context, error) {
	var initErr error
	ctx.once.Do(func() {
		ctx.Instance = wgpu.CreateInstance(nil)
		if ctx.Instance == nil {
			initErr = fmt.Errorf("failed to create WebGPU instance")
			return
		}

		// Prefer a discrete NVIDIA adapter when one is enumerated.
		for _, a := range ctx.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			slog.Debug("gpu adapter", "name", info.Name, "vendor", info.VendorName, "type", info.AdapterType)
			if strings.Contains(strings.ToLower(info.Name), "nvidia") ||
				strings.Contains(strings.ToLower(info.VendorName), "nvidia") {
				ctx.Adapter = a
				break
			}
		}

		for _, opts := range []*wgpu.RequestAdapterOptions{
			{PowerPreference: wgpu.PowerPreferenceHighPerformance},
			{PowerPreference: wgpu.PowerPreferenceLowPower},
			nil,
		} {
			if ctx.Adapter != nil {
				break
			}
			ctx.Adapter, initErr = ctx.Instance.RequestAdapter(opts)
			if initErr != nil {
				slog.Debug("gpu adapter request failed", "options", opts, "error", initErr)
			}
		}
		if ctx.Adapter == nil {
			initErr = fmt.Errorf("all adapter attempts failed: %v", initErr)
			return
		}

		info := ctx.Adapter.GetInfo()
		slog.Info("using gpu adapter", "name", info.Name, "vendor", info.VendorName)

		var err error
		ctx.Device, err = ctx.Adapter.RequestDevice(nil)
		if err != nil {
			initErr = err
			return
		}
		ctx.Queue = ctx.Device.GetQueue()
		ctx.Limits = ctx.Adapter.GetLimits()
		ctx.WorkgroupX, _, _ = detector.Recommend(ctx.Limits)
		initErr = nil
	})

	if initErr != nil {
		return nil, initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("WebGPU device or queue not initialized")
	}
	return &ctx, nil
}
