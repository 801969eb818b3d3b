package gpu

import (
	"fmt"
	"math"
	"strconv"

	"github.com/openfluke/webgpu/wgpu"
)

// NoParam marks a block without a weight or bias range.
const NoParam = -1

// BlockSpec is one representation block with its precomputed offsets.
type BlockSpec struct {
	Mul     int
	Dim     int
	Channel int // first channel of the block
	Weight  int // first weight index, or NoParam
	Bias    int // first bias index, or NoParam
}

type GroupNormSpec struct {
	Blocks    []BlockSpec
	BatchSize int
	Channels  int
	Spatial   int // x*y*z
	Epsilon   float32
	Weight    []float32 // nil when not affine
	Bias      []float32
}

// GroupNormLayer runs one invocation per (block, batch sample).
type GroupNormLayer struct {
	Spec GroupNormSpec

	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup

	InputBuffer   *wgpu.Buffer
	OutputBuffer  *wgpu.Buffer
	StagingBuffer *wgpu.Buffer
	WeightBuffer  *wgpu.Buffer
	BiasBuffer    *wgpu.Buffer
	BlockBuffer   *wgpu.Buffer

	WorkgroupX uint32
}

func (l *GroupNormLayer) GetInputBuffer() *wgpu.Buffer   { return l.InputBuffer }
func (l *GroupNormLayer) GetOutputBuffer() *wgpu.Buffer  { return l.OutputBuffer }
func (l *GroupNormLayer) GetStagingBuffer() *wgpu.Buffer { return l.StagingBuffer }

// Size is the number of floats of the input and output fields.
func (l *GroupNormLayer) Size() int {
	return l.Spec.BatchSize * l.Spec.Channels * l.Spec.Spatial
}

// Validate checks that the blocks tile the channel axis and index inside the parameter vectors.
func (s GroupNormSpec) Validate() error {
	if s.BatchSize < 1 || s.Spatial < 1 || len(s.Blocks) == 0 {
		return fmt.Errorf("group norm spec: empty field (batch=%d spatial=%d blocks=%d)", s.BatchSize, s.Spatial, len(s.Blocks))
	}
	ch := 0
	for i, b := range s.Blocks {
		if b.Mul <= 0 || b.Dim <= 0 || b.Channel != ch {
			return fmt.Errorf("group norm spec: block %d (%dx%d at channel %d) does not follow channel %d", i, b.Mul, b.Dim, b.Channel, ch)
		}
		ch += b.Mul * b.Dim
		if b.Weight != NoParam && b.Weight+b.Mul > len(s.Weight) {
			return fmt.Errorf("group norm spec: block %d weight range [%d, %d) exceeds %d", i, b.Weight, b.Weight+b.Mul, len(s.Weight))
		}
		if b.Bias != NoParam && b.Bias+b.Mul > len(s.Bias) {
			return fmt.Errorf("group norm spec: block %d bias range [%d, %d) exceeds %d", i, b.Bias, b.Bias+b.Mul, len(s.Bias))
		}
	}
	if ch != s.Channels {
		return fmt.Errorf("group norm spec: blocks cover %d channels, field has %d", ch, s.Channels)
	}
	return nil
}

// blockTable packs blocks as 5 u32 per entry: mul, dim, channel, weight, bias.
func (s GroupNormSpec) blockTable() []uint32 {
	table := make([]uint32, 0, 5*len(s.Blocks))
	off := func(v int) uint32 {
		if v == NoParam {
			return math.MaxUint32
		}
		return uint32(v)
	}
	for _, b := range s.Blocks {
		table = append(table, uint32(b.Mul), uint32(b.Dim), uint32(b.Channel), off(b.Weight), off(b.Bias))
	}
	return table
}

func (l *GroupNormLayer) AllocateBuffers(ctx *Context, labelPrefix string) error {
	if err := l.Spec.Validate(); err != nil {
		return err
	}
	bytes := uint64(l.Size() * 4)
	if limit := ctx.Limits.Limits.MaxStorageBufferBindingSize; limit > 0 && bytes > limit {
		return fmt.Errorf("field of %d bytes exceeds storage binding limit %d", bytes, limit)
	}

	var err error
	l.InputBuffer, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: labelPrefix + "_In",
		Size:  bytes,
		Usage: storageUsage,
	})
	if err != nil {
		return err
	}
	l.OutputBuffer, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: labelPrefix + "_Out",
		Size:  bytes,
		Usage: storageUsage,
	})
	if err != nil {
		return err
	}
	l.StagingBuffer, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: labelPrefix + "_Staging",
		Size:  bytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}

	// Dummy 1-element buffers satisfy the binding layout when a vector is empty.
	weight := l.Spec.Weight
	if len(weight) == 0 {
		weight = []float32{1}
	}
	if l.WeightBuffer, err = NewFloatBuffer(weight, storageUsage); err != nil {
		return err
	}
	bias := l.Spec.Bias
	if len(bias) == 0 {
		bias = []float32{0}
	}
	if l.BiasBuffer, err = NewFloatBuffer(bias, storageUsage); err != nil {
		return err
	}
	l.BlockBuffer, err = NewUintBuffer(l.Spec.blockTable(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	return err
}

func (l *GroupNormLayer) workgroupX() uint32 {
	if l.WorkgroupX == 0 {
		return 64
	}
	return l.WorkgroupX
}

func (l *GroupNormLayer) GenerateShader() string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read_write> output : array<f32>;
		@group(0) @binding(2) var<storage, read> weight : array<f32>;
		@group(0) @binding(3) var<storage, read> bias : array<f32>;
		@group(0) @binding(4) var<storage, read> blocks : array<u32>;

		const BATCH: u32 = %du;
		const CHANNELS: u32 = %du;
		const SPATIAL: u32 = %du;
		const NBLOCKS: u32 = %du;
		const EPS: f32 = %s;
		const NONE: u32 = 0xffffffffu;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= NBLOCKS * BATCH) {
				return;
			}
			let blk = idx / BATCH;
			let b = idx %% BATCH;

			let nmul = blocks[blk * 5u];
			let ndim = blocks[blk * 5u + 1u];
			let ch = blocks[blk * 5u + 2u];
			let wOff = blocks[blk * 5u + 3u];
			let bOff = blocks[blk * 5u + 4u];

			let n = nmul * ndim * SPATIAL;
			let unit = ndim * SPATIAL;
			let base = (b * CHANNELS + ch) * SPATIAL;

			// Only scalar blocks are centered.
			var mean: f32 = 0.0;
			if (ndim == 1u) {
				var sum: f32 = 0.0;
				for (var i: u32 = 0u; i < n; i++) {
					sum += input[base + i];
				}
				mean = sum / f32(n);
			}

			var sumSq: f32 = 0.0;
			for (var i: u32 = 0u; i < n; i++) {
				let c = input[base + i] - mean;
				sumSq += c * c;
			}
			let r = inverseSqrt(sumSq / f32(nmul * SPATIAL) + EPS);

			for (var u: u32 = 0u; u < nmul; u++) {
				var scale: f32 = r;
				if (wOff != NONE) {
					scale = scale * weight[wOff + u];
				}
				var shift: f32 = 0.0;
				if (bOff != NONE) {
					shift = bias[bOff + u];
				}
				for (var i: u32 = u * unit; i < (u + 1u) * unit; i++) {
					output[base + i] = (input[base + i] - mean) * scale + shift;
				}
			}
		}
	`, l.Spec.BatchSize, l.Spec.Channels, l.Spec.Spatial, len(l.Spec.Blocks),
		strconv.FormatFloat(float64(l.Spec.Epsilon), 'e', -1, 32), l.workgroupX())
}

func (l *GroupNormLayer) Compile(ctx *Context, labelPrefix string) error {
	if l.WorkgroupX == 0 {
		l.WorkgroupX = ctx.WorkgroupX
	}
	module, err := ctx.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          labelPrefix + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: l.GenerateShader()},
	})
	if err != nil {
		return err
	}

	l.pipeline, err = ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   labelPrefix + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	return err
}

func (l *GroupNormLayer) CreateBindGroup(ctx *Context, labelPrefix string) error {
	var err error
	entries := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: l.InputBuffer, Size: l.InputBuffer.GetSize()},
		{Binding: 1, Buffer: l.OutputBuffer, Size: l.OutputBuffer.GetSize()},
		{Binding: 2, Buffer: l.WeightBuffer, Size: l.WeightBuffer.GetSize()},
		{Binding: 3, Buffer: l.BiasBuffer, Size: l.BiasBuffer.GetSize()},
		{Binding: 4, Buffer: l.BlockBuffer, Size: l.BlockBuffer.GetSize()},
	}
	l.bindGroup, err = ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   labelPrefix + "_Bind",
		Layout:  l.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	return err
}

// Workgroups is the dispatch size along x.
func (l *GroupNormLayer) Workgroups() uint32 {
	invocations := uint32(len(l.Spec.Blocks) * l.Spec.BatchSize)
	wg := l.workgroupX()
	return (invocations + wg - 1) / wg
}

func (l *GroupNormLayer) Dispatch(pass *wgpu.ComputePassEncoder) {
	pass.SetPipeline(l.pipeline)
	pass.SetBindGroup(0, l.bindGroup, nil)
	pass.DispatchWorkgroups(l.Workgroups(), 1, 1)
}

func (l *GroupNormLayer) UploadWeights(ctx *Context) {
	if len(l.Spec.Weight) > 0 {
		ctx.Queue.WriteBuffer(l.WeightBuffer, 0, wgpu.ToBytes(l.Spec.Weight))
	}
	if len(l.Spec.Bias) > 0 {
		ctx.Queue.WriteBuffer(l.BiasBuffer, 0, wgpu.ToBytes(l.Spec.Bias))
	}
}

// Forward normalizes one field on the GPU. The layer must have been built with Build.
func (l *GroupNormLayer) Forward(ctx *Context, input []float32) ([]float32, error) {
	return Run(ctx, l, input, l.Size())
}

func (l *GroupNormLayer) Cleanup() {
	for _, b := range []*wgpu.Buffer{l.InputBuffer, l.OutputBuffer, l.StagingBuffer, l.WeightBuffer, l.BiasBuffer, l.BlockBuffer} {
		if b != nil {
			b.Destroy()
		}
	}
	if l.pipeline != nil {
		l.pipeline.Release()
	}
	if l.bindGroup != nil {
		l.bindGroup.Release()
	}
}
