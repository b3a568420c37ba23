package pix2pix

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/gogpu/gputypes"
)

// Allocator creates and frees the graphics resources behind a Texture.
//
// Free is called exactly once per texture, from Texture.Release.
// Implementations that keep a device-side copy may also implement
// Uploader so that Texture.Flush pushes CPU writes to the device.
type Allocator interface {
	Allocate(width, height int) (*Texture, error)
	Free(t *Texture)
}

// Uploader is implemented by allocators that mirror textures on a device.
type Uploader interface {
	Upload(t *Texture) error
}

// Texture is an RGBA8 render texture: row-major, top-left origin,
// 4 bytes per pixel. It stands in for the camera capture, the square
// inference input and the decoded output.
//
// Texture is not safe for concurrent use.
type Texture struct {
	width    int
	height   int
	data     []uint8
	alloc    Allocator
	handle   any
	released bool
}

// NewTexture creates a texture owned by alloc. handle is an opaque
// backend resource (for example a hal.Texture) returned by Handle.
// alloc may be nil for textures that own nothing but their pixels.
func NewTexture(width, height int, alloc Allocator, handle any) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}
	return &Texture{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
		alloc:  alloc,
		handle: handle,
	}, nil
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Size returns width and height.
func (t *Texture) Size() (width, height int) { return t.width, t.height }

// Format reports the pixel format, always RGBA8 unorm.
func (t *Texture) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

// Data returns the raw RGBA bytes. Nil after Release.
func (t *Texture) Data() []uint8 { return t.data }

// Handle returns the backend resource attached by the allocator.
func (t *Texture) Handle() any { return t.handle }

// Released reports whether Release has been called.
func (t *Texture) Released() bool { return t.released }

// Release frees the texture's resources. Only the first call reaches
// the allocator; later calls do nothing.
func (t *Texture) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	if t.alloc != nil {
		t.alloc.Free(t)
	}
	t.data = nil
	t.handle = nil
}

// Flush pushes CPU-side pixels to the device when the allocator keeps a
// device copy. It is a no-op for heap textures.
func (t *Texture) Flush() error {
	if t.released {
		return ErrTextureReleased
	}
	if up, ok := t.alloc.(Uploader); ok {
		return up.Upload(t)
	}
	return nil
}

// PixelRGBA returns the bytes of pixel (x, y). Out-of-range coordinates
// return zeros.
func (t *Texture) PixelRGBA(x, y int) (r, g, b, a uint8) {
	if x < 0 || x >= t.width || y < 0 || y >= t.height || t.released {
		return 0, 0, 0, 0
	}
	i := (y*t.width + x) * 4
	return t.data[i], t.data[i+1], t.data[i+2], t.data[i+3]
}

// SetPixelRGBA sets pixel (x, y). Out-of-range coordinates are ignored.
func (t *Texture) SetPixelRGBA(x, y int, r, g, b, a uint8) {
	if x < 0 || x >= t.width || y < 0 || y >= t.height || t.released {
		return
	}
	i := (y*t.width + x) * 4
	t.data[i+0] = r
	t.data[i+1] = g
	t.data[i+2] = b
	t.data[i+3] = a
}

// Fill sets every pixel to the same color.
func (t *Texture) Fill(r, g, b, a uint8) {
	for i := 0; i+3 < len(t.data); i += 4 {
		t.data[i+0] = r
		t.data[i+1] = g
		t.data[i+2] = b
		t.data[i+3] = a
	}
}

// RGBA returns an image.RGBA view sharing the texture's pixels.
func (t *Texture) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    t.data,
		Stride: t.width * 4,
		Rect:   image.Rect(0, 0, t.width, t.height),
	}
}

// ToImage returns a copy of the pixels as an image.RGBA.
func (t *Texture) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	copy(img.Pix, t.data)
	return img
}

// At implements image.Image.
func (t *Texture) At(x, y int) color.Color {
	r, g, b, a := t.PixelRGBA(x, y)
	return color.RGBA{R: r, G: g, B: b, A: a}
}

// Bounds implements image.Image.
func (t *Texture) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.width, t.height)
}

// ColorModel implements image.Image.
func (t *Texture) ColorModel() color.Model {
	return color.RGBAModel
}

// SavePNG writes the texture to a PNG file.
func (t *Texture) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return png.Encode(f, t.ToImage())
}

// HeapAllocator allocates plain CPU textures.
type HeapAllocator struct{}

// Allocate implements Allocator.
func (HeapAllocator) Allocate(width, height int) (*Texture, error) {
	t, err := NewTexture(width, height, HeapAllocator{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceAcquisition, err)
	}
	return t, nil
}

// Free implements Allocator.
func (HeapAllocator) Free(*Texture) {}
