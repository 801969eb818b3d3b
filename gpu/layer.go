package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Layer is the common interface of forward-only GPU kernels
type Layer interface {
	AllocateBuffers(ctx *Context, labelPrefix string) error
	Compile(ctx *Context, labelPrefix string) error
	CreateBindGroup(ctx *Context, labelPrefix string) error
	UploadWeights(ctx *Context)

	Dispatch(pass *wgpu.ComputePassEncoder)

	GetInputBuffer() *wgpu.Buffer
	GetOutputBuffer() *wgpu.Buffer
	GetStagingBuffer() *wgpu.Buffer

	Cleanup()
}

// Build allocates, compiles and binds l, then uploads its weights.
func Build(ctx *Context, l Layer, labelPrefix string) error {
	if err := l.AllocateBuffers(ctx, labelPrefix); err != nil {
		return fmt.Errorf("%s allocate: %w", labelPrefix, err)
	}
	if err := l.Compile(ctx, labelPrefix); err != nil {
		return fmt.Errorf("%s compile: %w", labelPrefix, err)
	}
	if err := l.CreateBindGroup(ctx, labelPrefix); err != nil {
		return fmt.Errorf("%s bind: %w", labelPrefix, err)
	}
	l.UploadWeights(ctx)
	return nil
}

// Run uploads input, dispatches l once and reads back outputSize floats.
func Run(ctx *Context, l Layer, input []float32, outputSize int) ([]float32, error) {
	inputBuf := l.GetInputBuffer()
	if capFloats := int(inputBuf.GetSize() / 4); len(input) != capFloats {
		return nil, fmt.Errorf("GPU input has %d floats, buffer holds %d", len(input), capFloats)
	}
	ctx.Queue.WriteBuffer(inputBuf, 0, wgpu.ToBytes(input))

	enc, err := ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	l.Dispatch(pass)
	pass.End()
	enc.CopyBufferToBuffer(l.GetOutputBuffer(), 0, l.GetStagingBuffer(), 0, l.GetOutputBuffer().GetSize())

	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("command encoder finish: %w", err)
	}
	ctx.Queue.Submit(cmd)
	ctx.Device.Poll(true, nil)

	return ReadStaging(ctx, l.GetStagingBuffer(), outputSize)
}
