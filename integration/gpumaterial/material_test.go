// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpumaterial

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/pix2pix"
)

// mockTexture implements gpucontext.Texture and gpucontext.TextureUpdater.
type mockTexture struct {
	width     int
	height    int
	data      []byte
	destroyed bool
	updated   int
}

func (m *mockTexture) Width() int  { return m.width }
func (m *mockTexture) Height() int { return m.height }

func (m *mockTexture) UpdateData(data []byte) error {
	m.data = bytes.Clone(data)
	m.updated++
	return nil
}

func (m *mockTexture) Destroy() { m.destroyed = true }

// mockCreator implements gpucontext.TextureCreator.
type mockCreator struct {
	textures []*mockTexture
	failNext bool
}

func (m *mockCreator) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	if m.failNext {
		m.failNext = false
		return nil, errors.New("mock texture creation failed")
	}
	tex := &mockTexture{width: width, height: height, data: bytes.Clone(data)}
	m.textures = append(m.textures, tex)
	return tex, nil
}

// mockDrawContext implements gpucontext.TextureDrawer.
type mockDrawContext struct {
	creator   *mockCreator
	drawn     gpucontext.Texture
	x, y      float32
	drawCount int
}

func (m *mockDrawContext) DrawTexture(tex gpucontext.Texture, x, y float32) error {
	m.drawn = tex
	m.x, m.y = x, y
	m.drawCount++
	return nil
}

func (m *mockDrawContext) TextureCreator() gpucontext.TextureCreator {
	if m.creator == nil {
		return nil
	}
	return m.creator
}

func newDC() *mockDrawContext {
	return &mockDrawContext{creator: &mockCreator{}}
}

func texture(t *testing.T, w, h int, r uint8) *pix2pix.Texture {
	t.Helper()
	tex, err := pix2pix.NewTexture(w, h, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	tex.Fill(r, 0, 0, 255)
	return tex
}

func TestSetTextureCopiesPixels(t *testing.T) {
	m := New()
	defer m.Close()

	tex := texture(t, 2, 2, 10)
	if err := m.SetTexture("_MainTex", tex); err != nil {
		t.Fatal(err)
	}
	tex.Release()

	w, h, data, ok := m.Pixels("_MainTex")
	if !ok || w != 2 || h != 2 || len(data) != 16 || data[0] != 10 {
		t.Errorf("Pixels = %d %d %v %v", w, h, data, ok)
	}
	if got := m.Slots(); len(got) != 1 || got[0] != "_MainTex" {
		t.Errorf("Slots = %v", got)
	}
	if m.Binds() != 1 {
		t.Errorf("Binds = %d, want 1", m.Binds())
	}
}

func TestSetTextureReleased(t *testing.T) {
	m := New()
	tex := texture(t, 1, 1, 0)
	tex.Release()
	if err := m.SetTexture("a", tex); !errors.Is(err, pix2pix.ErrTextureReleased) {
		t.Errorf("err = %v, want ErrTextureReleased", err)
	}
	if err := m.SetTexture("a", nil); !errors.Is(err, pix2pix.ErrTextureReleased) {
		t.Errorf("nil: err = %v, want ErrTextureReleased", err)
	}
}

func TestRenderToCreatesThenUpdates(t *testing.T) {
	m := New()
	defer m.Close()
	dc := newDC()

	_ = m.SetTexture("_MainTex", texture(t, 4, 4, 1))
	if err := m.RenderToEx(dc, "_MainTex", RenderOptions{X: 5, Y: 6}); err != nil {
		t.Fatal(err)
	}
	if len(dc.creator.textures) != 1 {
		t.Fatalf("textures created = %d, want 1", len(dc.creator.textures))
	}
	first := dc.creator.textures[0]
	if dc.drawn != first || dc.x != 5 || dc.y != 6 {
		t.Errorf("drawn %v at %v,%v", dc.drawn, dc.x, dc.y)
	}

	// Unchanged slot: no upload.
	if err := m.RenderTo(dc, "_MainTex"); err != nil {
		t.Fatal(err)
	}
	if first.updated != 0 {
		t.Errorf("updated = %d, want 0", first.updated)
	}

	// Same size: update in place.
	_ = m.SetTexture("_MainTex", texture(t, 4, 4, 2))
	if err := m.RenderTo(dc, "_MainTex"); err != nil {
		t.Fatal(err)
	}
	if len(dc.creator.textures) != 1 || first.updated != 1 || first.data[0] != 2 {
		t.Errorf("created=%d updated=%d", len(dc.creator.textures), first.updated)
	}
	if m.Texture("_MainTex") != first {
		t.Error("Texture() should return the slot texture")
	}
}

func TestRenderToResize(t *testing.T) {
	m := New()
	defer m.Close()
	dc := newDC()

	_ = m.SetTexture("s", texture(t, 4, 4, 1))
	_ = m.RenderTo(dc, "s")
	first := dc.creator.textures[0]

	_ = m.SetTexture("s", texture(t, 8, 8, 1))
	if first.destroyed {
		t.Error("old texture destroyed before its replacement exists")
	}
	if err := m.RenderTo(dc, "s"); err != nil {
		t.Fatal(err)
	}
	if len(dc.creator.textures) != 2 {
		t.Fatalf("textures created = %d, want 2", len(dc.creator.textures))
	}
	if !first.destroyed {
		t.Error("old texture should be destroyed after replacement")
	}
	if second := dc.creator.textures[1]; second.width != 8 || dc.drawn != second {
		t.Error("resized texture not drawn")
	}
}

func TestRenderToErrors(t *testing.T) {
	m := New()
	dc := newDC()

	if err := m.RenderTo(dc, "missing"); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("missing slot: err = %v, want ErrUnknownSlot", err)
	}

	_ = m.SetTexture("s", texture(t, 2, 2, 0))
	if err := m.RenderTo(&mockDrawContext{}, "s"); !errors.Is(err, ErrInvalidRenderer) {
		t.Errorf("no creator: err = %v, want ErrInvalidRenderer", err)
	}

	dc.creator.failNext = true
	if err := m.RenderTo(dc, "s"); err == nil {
		t.Error("expected creation failure")
	}
	if dc.drawCount != 0 {
		t.Errorf("drawCount = %d, want 0", dc.drawCount)
	}

	_ = m.Close()
	if err := m.RenderTo(dc, "s"); !errors.Is(err, ErrClosed) {
		t.Errorf("after close: err = %v, want ErrClosed", err)
	}
	if err := m.SetTexture("s", texture(t, 2, 2, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("SetTexture after close: err = %v, want ErrClosed", err)
	}
}

func TestCloseDestroysTextures(t *testing.T) {
	m := New()
	dc := newDC()
	_ = m.SetTexture("a", texture(t, 2, 2, 0))
	_ = m.SetTexture("b", texture(t, 2, 2, 0))
	_ = m.RenderTo(dc, "a")
	_ = m.RenderTo(dc, "b")

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	for i, tex := range dc.creator.textures {
		if !tex.destroyed {
			t.Errorf("texture %d not destroyed", i)
		}
	}
}

func TestMaterialInPipeline(t *testing.T) {
	cfg := pix2pix.DefaultConfig()
	cfg.InferenceResolution = 4
	cfg.HideRenderLayer = false

	m := New()
	defer m.Close()

	cam := pix2pix.Camera(&paintCamera{})
	p, err := pix2pix.New(cfg, cam, pix2pix.IdentityEngine, m)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.Request(t.Context()); err != nil {
		t.Fatal(err)
	}
	dc := newDC()
	if err := m.RenderTo(dc, cfg.MaterialProperty); err != nil {
		t.Fatal(err)
	}
	if dc.drawCount != 1 || dc.creator.textures[0].width != 4 {
		t.Error("pipeline output not drawn")
	}
}

type paintCamera struct {
	enabled bool
	lens    pix2pix.Lens
}

func (c *paintCamera) Render(dst *pix2pix.Texture) error {
	dst.Fill(0, 128, 255, 255)
	return nil
}
func (c *paintCamera) Enabled() bool          { return c.enabled }
func (c *paintCamera) SetEnabled(v bool)      { c.enabled = v }
func (c *paintCamera) Lens() pix2pix.Lens     { return c.lens }
func (c *paintCamera) SetLens(l pix2pix.Lens) { c.lens = l }
