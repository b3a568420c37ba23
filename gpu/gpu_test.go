package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pix2pix"
	"github.com/gogpu/pix2pix/internal/shader"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func TestNewAllocatorNilDevice(t *testing.T) {
	if _, err := NewAllocator(nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("err = %v, want ErrNoDevice", err)
	}
}

func TestAllocateFreeUpload(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	a, err := NewAllocator(device, queue)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	tex, err := a.Allocate(16, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if tex.Width() != 16 || tex.Height() != 8 {
		t.Errorf("size = %dx%d, want 16x8", tex.Width(), tex.Height())
	}
	if _, ok := tex.Handle().(hal.Texture); !ok {
		t.Errorf("handle is %T, want hal.Texture", tex.Handle())
	}
	if a.Live() != 1 {
		t.Errorf("Live = %d, want 1", a.Live())
	}

	tex.Fill(10, 20, 30, 255)
	if err := tex.Flush(); err != nil {
		t.Errorf("Flush: %v", err)
	}

	tex.Release()
	tex.Release()
	if a.Live() != 0 {
		t.Errorf("Live after double release = %d, want 0", a.Live())
	}
	if err := tex.Flush(); !errors.Is(err, pix2pix.ErrTextureReleased) {
		t.Errorf("Flush after release: err = %v, want ErrTextureReleased", err)
	}
}

func TestAllocateInvalid(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	a, _ := NewAllocator(device, queue)
	defer a.Close()

	tests := []struct {
		name string
		w, h int
	}{
		{"zero width", 0, 4},
		{"zero height", 4, 0},
		{"negative", -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Allocate(tt.w, tt.h); !errors.Is(err, pix2pix.ErrInvalidDimensions) {
				t.Errorf("err = %v, want ErrInvalidDimensions", err)
			}
		})
	}
	if a.Live() != 0 {
		t.Errorf("Live = %d, want 0", a.Live())
	}
}

func TestAllocateAfterClose(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	a, _ := NewAllocator(device, queue)
	a.Close()
	a.Close()
	if _, err := a.Allocate(4, 4); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p fakeProvider) HalDevice() any { return p.device }
func (p fakeProvider) HalQueue() any { return p.queue }

func TestFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	a, err := FromProvider(fakeProvider{device, queue})
	if err != nil {
		t.Fatalf("FromProvider: %v", err)
	}
	if a.Device() != device {
		t.Error("device not shared")
	}
	a.Close()

	if _, err := FromProvider(struct{}{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("non-provider: err = %v, want ErrNoDevice", err)
	}
	if _, err := FromProvider(fakeProvider{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("nil device: err = %v, want ErrNoDevice", err)
	}
}

func TestOpenNoopBackend(t *testing.T) {
	a, err := Open(gputypes.BackendEmpty)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tex, err := a.Allocate(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	tex.Release()
	a.Close()
}

func TestShaderModule(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	a, _ := NewAllocator(device, queue)
	defer a.Close()

	for _, name := range shader.Names() {
		t.Run(name, func(t *testing.T) {
			m, err := a.ShaderModule(name)
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				t.Fatalf("ShaderModule(%q): %v", name, err)
			}
			again, err := a.ShaderModule(name)
			if err != nil || again != m {
				t.Error("second call should return the cached module")
			}
		})
	}
}

func TestPipelineOnGPUAllocator(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	a, _ := NewAllocator(device, queue)
	defer a.Close()

	cfg := pix2pix.DefaultConfig()
	cfg.InferenceResolution = 4
	cfg.HideRenderLayer = false

	cam := &solidCamera{enabled: true}
	var bound *pix2pix.Texture
	mtl := pix2pix.MaterialFunc(func(_ string, tex *pix2pix.Texture) error {
		bound = tex
		return nil
	})

	p, err := pix2pix.New(cfg, cam, pix2pix.IdentityEngine, mtl, pix2pix.WithAllocator(a))
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := p.Request(t.Context()); !ok || err != nil {
		t.Fatalf("Request = %v, %v", ok, err)
	}
	if bound == nil {
		t.Fatal("no texture bound")
	}
	if _, ok := bound.Handle().(hal.Texture); !ok {
		t.Errorf("bound texture handle is %T, want hal.Texture", bound.Handle())
	}
	if a.Live() != 3 {
		t.Errorf("Live = %d, want 3", a.Live())
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if a.Live() != 0 {
		t.Errorf("Live after Close = %d, want 0", a.Live())
	}
}

type solidCamera struct {
	enabled bool
	lens    pix2pix.Lens
}

func (c *solidCamera) Render(dst *pix2pix.Texture) error {
	dst.Fill(200, 100, 50, 255)
	return nil
}
func (c *solidCamera) Enabled() bool { return c.enabled }
func (c *solidCamera) SetEnabled(v bool) { c.enabled = v }
func (c *solidCamera) Lens() pix2pix.Lens { return c.lens }
func (c *solidCamera) SetLens(l pix2pix.Lens) { c.lens = l }
