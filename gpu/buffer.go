package gpu

import (
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

// NewFloatBuffer creates a buffer with the given float32 data
func NewFloatBuffer(data []float32, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: wgpu.ToBytes(data),
		Usage:    usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %v", err)
	}
	return buf, nil
}

// NewUintBuffer creates a buffer with the given uint32 data
func NewUintBuffer(data []uint32, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: wgpu.ToBytes(data),
		Usage:    usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %v", err)
	}
	return buf, nil
}

// ReadStaging maps a MapRead buffer and copies size floats out of it
func ReadStaging(c *Context, buf *wgpu.Buffer, size int) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("read staging: invalid size %d", size)
	}
	if bufFloats := int(buf.GetSize() / 4); size > bufFloats {
		return nil, fmt.Errorf("read staging: requested %d floats but buffer holds %d", size, bufFloats)
	}

	done := make(chan struct{})
	var mapErr error
	wantBytes := uint64(size) * 4
	err := buf.MapAsync(wgpu.MapModeRead, 0, wantBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("MapAsync failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
Loop:
	for {
		c.Device.Poll(false, nil)
		select {
		case <-done:
			break Loop
		case <-timeout:
			return nil, fmt.Errorf("read staging timed out after 2s")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := buf.GetMappedRange(0, uint(wantBytes))
	if data == nil {
		return nil, fmt.Errorf("failed to get mapped range")
	}
	defer buf.Unmap()

	out := make([]float32, size)
	copy(out, wgpu.FromBytes[float32](data)[:size])
	return out, nil
}
