package pix2pix

import (
	"fmt"
	"strings"
)

// Layout is the memory order of a packed image tensor.
type Layout uint8

const (
	// LayoutNHWC interleaves channels per pixel: shape [1, H, W, C].
	LayoutNHWC Layout = iota

	// LayoutNCHW stores one plane per channel: shape [1, C, H, W].
	LayoutNCHW
)

// String returns the lower-case layout name used in configuration files.
func (l Layout) String() string {
	switch l {
	case LayoutNHWC:
		return "nhwc"
	case LayoutNCHW:
		return "nchw"
	default:
		return "unknown"
	}
}

// ParseLayout parses "nhwc" or "nchw" (case-insensitive).
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nhwc":
		return LayoutNHWC, nil
	case "nchw":
		return LayoutNCHW, nil
	default:
		return 0, fmt.Errorf("%w: unknown tensor layout %q", ErrInvalidConfig, s)
	}
}

// Tensor is a flat float32 buffer with its shape.
type Tensor struct {
	Shape  []int64
	Layout Layout
	Data   []float32
}

// Channels returns the channel dimension of an image tensor.
func (t *Tensor) Channels() int {
	if len(t.Shape) != 4 {
		return 0
	}
	if t.Layout == LayoutNCHW {
		return int(t.Shape[1])
	}
	return int(t.Shape[3])
}

// Packer converts an inference texture to a tensor. Pack is the CPU
// implementation; the gpu package provides a compute-shader one.
type Packer interface {
	Pack(tex *Texture, channels int, layout Layout) (*Tensor, error)
}

// PackFunc adapts a function to Packer.
type PackFunc func(tex *Texture, channels int, layout Layout) (*Tensor, error)

// Pack implements Packer.
func (f PackFunc) Pack(tex *Texture, channels int, layout Layout) (*Tensor, error) {
	return f(tex, channels, layout)
}

// Pack converts a texture to a tensor of width*height*channels values in
// [0,1]. channels selects the mode: 1 packs the mean of R, G and B,
// 3 packs RGB, 4 packs RGBA.
func Pack(tex *Texture, channels int, layout Layout) (*Tensor, error) {
	if tex.released {
		return nil, ErrTextureReleased
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChannels, channels)
	}

	w, h := tex.Size()
	plane := w * h
	data := make([]float32, plane*channels)
	src := tex.Data()

	for p := range plane {
		px := src[p*4 : p*4+4]
		var vals [4]float32
		if channels == 1 {
			sum := int(px[0]) + int(px[1]) + int(px[2])
			vals[0] = float32(sum) / (3 * 255)
		} else {
			for c := range channels {
				vals[c] = float32(px[c]) / 255
			}
		}
		for c := range channels {
			if layout == LayoutNCHW {
				data[c*plane+p] = vals[c]
			} else {
				data[p*channels+c] = vals[c]
			}
		}
	}

	shape := []int64{1, int64(h), int64(w), int64(channels)}
	if layout == LayoutNCHW {
		shape = []int64{1, int64(channels), int64(h), int64(w)}
	}
	return &Tensor{Shape: shape, Layout: layout, Data: data}, nil
}
