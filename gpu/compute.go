package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pix2pix"
	"github.com/gogpu/pix2pix/internal/shader"
	"github.com/gogpu/wgpu/hal"
)

// ErrComputeClosed is returned by Pack and Decode after Compute.Close.
var ErrComputeClosed = errors.New("gpu: compute stages are closed")

// Compute runs the pack and decode stages as compute shaders on an
// allocator's device. It implements pix2pix.Packer and pix2pix.Decoder:
//
//	stages, err := gpu.NewCompute(alloc)
//	if err != nil {
//	    return err
//	}
//	defer stages.Close()
//
//	p, err := pix2pix.New(cfg, cam, engine, mtl,
//	    pix2pix.WithAllocator(alloc),
//	    pix2pix.WithPacker(stages),
//	    pix2pix.WithDecoder(stages))
//
// Dispatches are serialized. Close must be called before the allocator's
// Close, which destroys the shader modules.
type Compute struct {
	device hal.Device
	queue  hal.Queue
	label  string

	mu     sync.Mutex
	pack   kernel
	decode kernel
	closed bool
}

// kernel is one compute pipeline with a uniform block at binding 0, a
// read-only input at binding 1 and the output at binding 2.
type kernel struct {
	name       string
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// NewCompute compiles the pack and decode shaders on a's device and
// creates their pipelines.
func NewCompute(a *Allocator) (*Compute, error) {
	c := &Compute{device: a.device, queue: a.queue, label: a.label}

	var err error
	if c.pack, err = c.createKernel(a, shader.Pack, shader.PackEntry); err != nil {
		return nil, err
	}
	if c.decode, err = c.createKernel(a, shader.Decode, shader.DecodeEntry); err != nil {
		c.destroyKernel(&c.pack)
		return nil, err
	}
	return c, nil
}

func (c *Compute) createKernel(a *Allocator, name, entry string) (kernel, error) {
	k := kernel{name: name}
	module, err := a.ShaderModule(name)
	if err != nil {
		return k, err
	}

	k.bindLayout, err = c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: c.label + "_" + name + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return k, fmt.Errorf("create %s bind group layout: %w", name, err)
	}

	k.pipeLayout, err = c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            c.label + "_" + name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		c.destroyKernel(&k)
		return k, fmt.Errorf("create %s pipeline layout: %w", name, err)
	}

	k.pipeline, err = c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   c.label + "_" + name + "_pipeline",
		Layout:  k.pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: entry},
	})
	if err != nil {
		c.destroyKernel(&k)
		return k, fmt.Errorf("create %s compute pipeline: %w", name, err)
	}
	return k, nil
}

func (c *Compute) destroyKernel(k *kernel) {
	if k.pipeline != nil {
		c.device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		c.device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		c.device.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
}

// Close destroys the pipelines. Later calls are no-ops.
func (c *Compute) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.destroyKernel(&c.pack)
	c.destroyKernel(&c.decode)
}

// Pack implements pix2pix.Packer. The result matches pix2pix.Pack.
func (c *Compute) Pack(tex *pix2pix.Texture, channels int, layout pix2pix.Layout) (*pix2pix.Tensor, error) {
	if tex.Released() {
		return nil, pix2pix.ErrTextureReleased
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: got %d", pix2pix.ErrInvalidChannels, channels)
	}

	w, h := tex.Size()
	params := make([]byte, 0, shader.PackParamsSize)
	params = binary.LittleEndian.AppendUint32(params, uint32(w))        //nolint:gosec // texture sizes are positive
	params = binary.LittleEndian.AppendUint32(params, uint32(h))        //nolint:gosec // texture sizes are positive
	params = binary.LittleEndian.AppendUint32(params, uint32(channels)) //nolint:gosec // validated above
	params = binary.LittleEndian.AppendUint32(params, boolWord(layout == pix2pix.LayoutNCHW))

	// RGBA8 bytes are already the shader's packed little-endian texels.
	raw, err := c.dispatch(&c.pack, params, tex.Data(), uint64(w*h*channels*4), w, h) //nolint:gosec // positive
	if err != nil {
		return nil, err
	}

	data := make([]float32, w*h*channels)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	shape := []int64{1, int64(h), int64(w), int64(channels)}
	if layout == pix2pix.LayoutNCHW {
		shape = []int64{1, int64(channels), int64(h), int64(w)}
	}
	return &pix2pix.Tensor{Shape: shape, Layout: layout, Data: data}, nil
}

// Decode implements pix2pix.Decoder. The result matches pix2pix.Decode:
// a short out is rejected before dst is touched, and a dst of another size
// is resampled with nearest filtering.
func (c *Compute) Decode(out []float32, w, h int, p pix2pix.DecodeParams, dst *pix2pix.Texture) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", pix2pix.ErrInvalidDimensions, w, h)
	}
	need := p.RequiredLen(w, h)
	if len(out) < need {
		return fmt.Errorf("%w: have %d values, need %d for %dx%d", pix2pix.ErrShapeMismatch, len(out), need, w, h)
	}
	if dst.Released() {
		return pix2pix.ErrTextureReleased
	}

	params := make([]byte, 0, shader.DecodeParamsSize)
	for _, v := range []uint32{
		uint32(w), uint32(h), //nolint:gosec // validated positive
		boolWord(p.Grayscale),
		boolWord(p.Layout == pix2pix.LayoutNCHW),
		boolWord(p.FlipX),
		boolWord(p.FlipY),
		0, 0,
	} {
		params = binary.LittleEndian.AppendUint32(params, v)
	}

	values := make([]byte, need*4)
	for i, v := range out[:need] {
		binary.LittleEndian.PutUint32(values[i*4:], math.Float32bits(v))
	}

	pixels, err := c.dispatch(&c.decode, params, values, uint64(w*h*4), w, h) //nolint:gosec // positive
	if err != nil {
		return err
	}

	if dw, dh := dst.Size(); dw == w && dh == h {
		copy(dst.Data(), pixels)
		return nil
	}
	tmp, err := pix2pix.NewTexture(w, h, nil, nil)
	if err != nil {
		return err
	}
	defer tmp.Release()
	copy(tmp.Data(), pixels)
	return pix2pix.Blit(tmp, dst, pix2pix.FlipScale(false, false), [2]float64{0, 0}, pix2pix.MirrorSampler)
}

// dispatch runs k over a w×h grid and returns the first outSize bytes of
// its output buffer.
func (c *Compute) dispatch(k *kernel, params, input []byte, outSize uint64, w, h int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrComputeClosed
	}

	uniformBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: c.label + "_" + k.name + "_params", Size: uint64(len(params)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s uniform buffer: %w", k.name, err)
	}
	defer c.device.DestroyBuffer(uniformBuf)

	inputBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: c.label + "_" + k.name + "_input", Size: uint64(len(input)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s input buffer: %w", k.name, err)
	}
	defer c.device.DestroyBuffer(inputBuf)

	outputBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: c.label + "_" + k.name + "_output", Size: outSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s output buffer: %w", k.name, err)
	}
	defer c.device.DestroyBuffer(outputBuf)

	stagingBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: c.label + "_" + k.name + "_staging", Size: outSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s staging buffer: %w", k.name, err)
	}
	defer c.device.DestroyBuffer(stagingBuf)

	if err := c.queue.WriteBuffer(uniformBuf, 0, params); err != nil {
		return nil, fmt.Errorf("write %s params: %w", k.name, err)
	}
	if err := c.queue.WriteBuffer(inputBuf, 0, input); err != nil {
		return nil, fmt.Errorf("write %s input: %w", k.name, err)
	}

	bg, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: c.label + "_" + k.name + "_bind", Layout: k.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: uint64(len(params))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: inputBuf.NativeHandle(), Offset: 0, Size: uint64(len(input))}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: outputBuf.NativeHandle(), Offset: 0, Size: outSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", k.name, err)
	}
	defer c.device.DestroyBindGroup(bg)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: c.label + "_" + k.name + "_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(k.name); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	gx := uint32((w + shader.WorkgroupSize - 1) / shader.WorkgroupSize) //nolint:gosec // positive
	gy := uint32((h + shader.WorkgroupSize - 1) / shader.WorkgroupSize) //nolint:gosec // positive
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.name + "_pass"})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(gx, gy, 1)
	pass.End()

	encoder.CopyBufferToBuffer(outputBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: outSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	if _, err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return nil, fmt.Errorf("submit %s: %w", k.name, err)
	}
	if err := c.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", k.name, err)
	}

	mapping, err := c.device.MapBuffer(stagingBuf, 0, outSize)
	if err != nil {
		return nil, fmt.Errorf("map %s readback: %w", k.name, err)
	}
	readback := make([]byte, outSize)
	copy(readback, unsafe.Slice((*byte)(mapping.Ptr), outSize)) //nolint:gosec // mapping covers outSize bytes
	if err := c.device.UnmapBuffer(stagingBuf); err != nil {
		return nil, fmt.Errorf("unmap %s readback: %w", k.name, err)
	}

	pix2pix.Logger().Debug("gpu dispatch", "kernel", k.name, "workgroups_x", gx, "workgroups_y", gy, "bytes", outSize)
	return readback, nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
