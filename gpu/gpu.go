// Package gpu mirrors pipeline textures on a gogpu/wgpu HAL device.
//
// An Allocator creates one RGBA8 device texture per pix2pix.Texture and
// uploads the CPU pixels on Flush, so a host renderer can sample the
// capture, inference input and decoded output directly:
//
//	alloc, err := gpu.Open(gputypes.BackendVulkan)
//	if err != nil {
//	    return err
//	}
//	defer alloc.Close()
//
//	p, err := pix2pix.New(cfg, cam, engine, mtl, pix2pix.WithAllocator(alloc))
//
// To share a device owned by the host, use FromProvider with any value that
// exposes HalDevice() and HalQueue().
package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pix2pix"
	"github.com/gogpu/pix2pix/internal/shader"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrNoDevice is returned when no usable HAL device is available.
	ErrNoDevice = errors.New("gpu: no device")

	// ErrClosed is returned by Allocate after Close.
	ErrClosed = errors.New("gpu: allocator is closed")
)

// DefaultUsage is the usage of allocated textures: writable by the queue,
// readable by shaders and copyable for readback.
const DefaultUsage = gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding

// Allocator implements pix2pix.Allocator and pix2pix.Uploader over a HAL
// device. It is safe for concurrent use.
type Allocator struct {
	device hal.Device
	queue  hal.Queue
	usage  gputypes.TextureUsage
	label  string

	// instance is set when the allocator opened the device itself.
	instance hal.Instance

	mu      sync.Mutex
	live    int
	serial  uint64
	shaders map[string]hal.ShaderModule
	closed  bool
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithUsage overrides DefaultUsage. CopyDst is always added so Upload works.
func WithUsage(u gputypes.TextureUsage) Option {
	return func(a *Allocator) {
		a.usage = u | gputypes.TextureUsageCopyDst
	}
}

// WithLabel sets the prefix of texture labels.
func WithLabel(label string) Option {
	return func(a *Allocator) {
		a.label = label
	}
}

// NewAllocator creates an allocator on an existing device. The caller keeps
// ownership of device and queue.
func NewAllocator(device hal.Device, queue hal.Queue, opts ...Option) (*Allocator, error) {
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}
	a := &Allocator{
		device:  device,
		queue:   queue,
		usage:   DefaultUsage,
		label:   "pix2pix",
		shaders: make(map[string]hal.ShaderModule),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// FromProvider creates an allocator on the device of a host provider that
// implements HalDevice() any and HalQueue() any.
func FromProvider(provider any, opts ...Option) (*Allocator, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoDevice)
	}
	return NewAllocator(device, queue, opts...)
}

// Open creates a device on the given registered backend, preferring a
// discrete or integrated GPU. The allocator owns the device and destroys it
// on Close.
func Open(variant gputypes.Backend, opts ...Option) (*Allocator, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: backend %v not registered", ErrNoDevice, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrNoDevice)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	a, err := NewAllocator(openDev.Device, openDev.Queue, opts...)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	a.instance = instance
	pix2pix.Logger().Info("gpu device opened", "adapter", selected.Info.Name, "backend", variant)
	return a, nil
}

// Device returns the HAL device.
func (a *Allocator) Device() hal.Device { return a.device }

// Live returns the number of textures allocated and not yet freed.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Allocate creates a device texture and its CPU mirror.
func (a *Allocator) Allocate(width, height int) (*pix2pix.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", pix2pix.ErrInvalidDimensions, width, height)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	a.serial++
	label := fmt.Sprintf("%s_texture_%d", a.label, a.serial)
	a.mu.Unlock()

	ht, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(width),  //nolint:gosec // validated positive
			Height:             uint32(height), //nolint:gosec // validated positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         a.usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", pix2pix.ErrResourceAcquisition, label, err)
	}

	t, err := pix2pix.NewTexture(width, height, a, ht)
	if err != nil {
		a.device.DestroyTexture(ht)
		return nil, err
	}

	a.mu.Lock()
	a.live++
	a.mu.Unlock()
	return t, nil
}

// Free destroys the device texture behind t.
func (a *Allocator) Free(t *pix2pix.Texture) {
	ht, ok := t.Handle().(hal.Texture)
	if !ok || ht == nil {
		return
	}
	a.device.DestroyTexture(ht)

	a.mu.Lock()
	a.live--
	a.mu.Unlock()
}

// Upload writes t's pixels to its device texture.
func (a *Allocator) Upload(t *pix2pix.Texture) error {
	ht, ok := t.Handle().(hal.Texture)
	if !ok || ht == nil {
		return fmt.Errorf("gpu: texture has no device handle")
	}
	w, h := uint32(t.Width()), uint32(t.Height()) //nolint:gosec // texture sizes are positive
	return a.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  ht,
			MipLevel: 0,
			Aspect:   gputypes.TextureAspectAll,
		},
		t.Data(),
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
}

// ShaderModule returns the device module for an embedded shader ("pack"
// or "decode"), compiling it to SPIR-V on first use.
func (a *Allocator) ShaderModule(name string) (hal.ShaderModule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if m, ok := a.shaders[name]; ok {
		return m, nil
	}
	code, err := shader.Compile(name)
	if err != nil {
		return nil, err
	}
	m, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  a.label + "_" + name,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", name, err)
	}
	a.shaders[name] = m
	return m, nil
}

// Close destroys shader modules and, if the allocator opened the device,
// the device itself. Textures still alive must be released before Close.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	for name, m := range a.shaders {
		a.device.DestroyShaderModule(m)
		delete(a.shaders, name)
	}
	if a.live > 0 {
		pix2pix.Logger().Warn("gpu allocator closed with live textures", "live", a.live)
	}
	if a.instance != nil {
		a.device.Destroy()
		a.instance.Destroy()
		a.instance = nil
	}
}
