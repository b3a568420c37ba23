// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpumaterial

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/pix2pix"
)

var (
	// ErrClosed is returned when operations are attempted on a closed material.
	ErrClosed = errors.New("gpumaterial: material is closed")

	// ErrUnknownSlot is returned when drawing a slot that was never bound.
	ErrUnknownSlot = errors.New("gpumaterial: unknown texture slot")

	// ErrInvalidRenderer is returned when the draw context has no texture creator.
	ErrInvalidRenderer = errors.New("gpumaterial: draw context has no texture creator")
)

// textureDestroyer matches the Destroy method of host textures.
type textureDestroyer interface {
	Destroy()
}

// slot holds the latest pixels bound under one property name and the GPU
// texture they are uploaded to.
type slot struct {
	width, height int
	data          []byte
	dirty         bool

	texture    gpucontext.Texture
	oldTexture gpucontext.Texture
}

// Material is a set of named texture slots backed by host GPU textures.
// It is safe for concurrent use.
type Material struct {
	mu     sync.Mutex
	slots  map[string]*slot
	binds  uint64
	closed bool
}

// New creates an empty material.
func New() *Material {
	return &Material{slots: make(map[string]*slot)}
}

// SetTexture implements pix2pix.Material. The pixels are copied, so tex may
// be released after the call.
func (m *Material) SetTexture(name string, tex *pix2pix.Texture) error {
	if tex == nil || tex.Released() {
		return pix2pix.ErrTextureReleased
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	s, ok := m.slots[name]
	if !ok {
		s = &slot{}
		m.slots[name] = s
	}
	w, h := tex.Size()
	if s.texture != nil && (s.width != w || s.height != h) {
		// Keep the old texture alive until its replacement exists.
		destroy(s.oldTexture)
		s.oldTexture = s.texture
		s.texture = nil
	}
	s.width, s.height = w, h
	s.data = append(s.data[:0], tex.Data()...)
	s.dirty = true
	m.binds++
	return nil
}

// Slots returns the bound property names in sorted order.
func (m *Material) Slots() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.slots))
	for name := range m.slots {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Binds returns how many times SetTexture succeeded.
func (m *Material) Binds() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binds
}

// Texture returns the GPU texture of a slot, or nil before its first draw.
func (m *Material) Texture(name string) gpucontext.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[name]; ok {
		return s.texture
	}
	return nil
}

// Pixels returns a copy of the latest pixels bound to a slot.
func (m *Material) Pixels(name string) (width, height int, data []byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[name]
	if !ok {
		return 0, 0, nil, false
	}
	return s.width, s.height, slices.Clone(s.data), true
}

// RenderOptions controls where a slot is drawn.
type RenderOptions struct {
	// X, Y is the position to draw the texture (default: 0, 0)
	X, Y float32
}

// RenderTo uploads the slot if it changed and draws it at (0, 0).
func (m *Material) RenderTo(dc gpucontext.TextureDrawer, name string) error {
	return m.RenderToEx(dc, name, RenderOptions{})
}

// RenderToEx is RenderTo with a position.
func (m *Material) RenderToEx(dc gpucontext.TextureDrawer, name string, opts RenderOptions) error {
	tex, err := m.flush(dc, name)
	if err != nil {
		return err
	}
	return dc.DrawTexture(tex, opts.X, opts.Y)
}

// flush brings the slot's GPU texture up to date with its pixels.
func (m *Material) flush(dc gpucontext.TextureDrawer, name string) (gpucontext.Texture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	if !s.dirty && s.texture != nil {
		return s.texture, nil
	}

	if s.texture != nil {
		if updater, ok := s.texture.(gpucontext.TextureUpdater); ok {
			if err := updater.UpdateData(s.data); err != nil {
				return nil, fmt.Errorf("gpumaterial: texture update failed: %w", err)
			}
			s.dirty = false
			return s.texture, nil
		}
		// Not updatable: replace it.
		destroy(s.oldTexture)
		s.oldTexture = s.texture
		s.texture = nil
	}

	creator := dc.TextureCreator()
	if creator == nil {
		return nil, ErrInvalidRenderer
	}
	tex, err := creator.NewTextureFromRGBA(s.width, s.height, s.data)
	if err != nil {
		return nil, fmt.Errorf("gpumaterial: NewTextureFromRGBA failed: %w", err)
	}
	s.texture = tex
	s.dirty = false

	destroy(s.oldTexture)
	s.oldTexture = nil

	pix2pix.Logger().Debug("gpumaterial: texture created", "slot", name, "width", s.width, "height", s.height)
	return tex, nil
}

// Close destroys every GPU texture. Close is idempotent.
func (m *Material) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for name, s := range m.slots {
		destroy(s.oldTexture)
		destroy(s.texture)
		delete(m.slots, name)
	}
	return nil
}

func destroy(tex any) {
	if d, ok := tex.(textureDestroyer); ok {
		d.Destroy()
	}
}
