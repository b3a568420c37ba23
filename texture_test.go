package pix2pix

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestNewTextureInvalidDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"zero width", 0, 10},
		{"zero height", 10, 0},
		{"negative", -3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTexture(tt.w, tt.h, nil, nil); !errors.Is(err, ErrInvalidDimensions) {
				t.Errorf("err = %v, want ErrInvalidDimensions", err)
			}
		})
	}
}

func TestTexturePixels(t *testing.T) {
	tex, err := NewTexture(3, 2, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tex.Data()) != 3*2*4 {
		t.Fatalf("len(Data) = %d, want 24", len(tex.Data()))
	}

	tex.SetPixelRGBA(2, 1, 1, 2, 3, 4)
	if r, g, b, a := tex.PixelRGBA(2, 1); r != 1 || g != 2 || b != 3 || a != 4 {
		t.Errorf("PixelRGBA(2,1) = %d,%d,%d,%d", r, g, b, a)
	}

	// Out of range is ignored on write and zero on read.
	tex.SetPixelRGBA(3, 0, 9, 9, 9, 9)
	tex.SetPixelRGBA(-1, 0, 9, 9, 9, 9)
	if r, g, b, a := tex.PixelRGBA(5, 5); r|g|b|a != 0 {
		t.Error("out-of-range read should be zero")
	}

	tex.Fill(7, 8, 9, 255)
	for y := range 2 {
		for x := range 3 {
			if r, g, b, a := tex.PixelRGBA(x, y); r != 7 || g != 8 || b != 9 || a != 255 {
				t.Errorf("Fill: pixel (%d,%d) = %d,%d,%d,%d", x, y, r, g, b, a)
			}
		}
	}
}

func TestTextureRGBAView(t *testing.T) {
	tex, _ := NewTexture(2, 2, nil, nil)
	img := tex.RGBA()
	img.Pix[0] = 42
	if r, _, _, _ := tex.PixelRGBA(0, 0); r != 42 {
		t.Error("RGBA() should share pixels with the texture")
	}

	cp := tex.ToImage()
	cp.Pix[0] = 1
	if r, _, _, _ := tex.PixelRGBA(0, 0); r != 42 {
		t.Error("ToImage() should copy pixels")
	}
}

type recordingAllocator struct {
	frees int
	ups   int
}

func (a *recordingAllocator) Allocate(w, h int) (*Texture, error) { return NewTexture(w, h, a, "h") }
func (a *recordingAllocator) Free(*Texture) { a.frees++ }
func (a *recordingAllocator) Upload(*Texture) error { a.ups++; return nil }

func TestTextureReleaseOnce(t *testing.T) {
	a := &recordingAllocator{}
	tex, _ := a.Allocate(2, 2)

	if err := tex.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if a.ups != 1 {
		t.Errorf("uploads = %d, want 1", a.ups)
	}

	tex.Release()
	tex.Release()
	if a.frees != 1 {
		t.Errorf("frees = %d, want 1", a.frees)
	}
	if !tex.Released() || tex.Data() != nil || tex.Handle() != nil {
		t.Error("released texture should drop its data and handle")
	}
	if err := tex.Flush(); !errors.Is(err, ErrTextureReleased) {
		t.Errorf("Flush after release: err = %v, want ErrTextureReleased", err)
	}

	var nilTex *Texture
	nilTex.Release()
}

func TestHeapAllocatorFlushNoop(t *testing.T) {
	tex, err := HeapAllocator{}.Allocate(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := tex.Flush(); err != nil {
		t.Errorf("Flush = %v, want nil", err)
	}
	if _, err := (HeapAllocator{}).Allocate(0, 4); !errors.Is(err, ErrResourceAcquisition) {
		t.Errorf("err = %v, want ErrResourceAcquisition", err)
	}
}

func TestTextureSavePNG(t *testing.T) {
	tex, _ := NewTexture(2, 1, nil, nil)
	tex.SetPixelRGBA(1, 0, 10, 20, 30, 255)

	path := filepath.Join(t.TempDir(), "out.png")
	if err := tex.SavePNG(path); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(1, 0).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Errorf("decoded pixel = %d,%d,%d", r>>8, g>>8, b>>8)
	}
}
