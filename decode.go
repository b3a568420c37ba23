package pix2pix

import (
	"fmt"
	"math"
)

// DecodeParams controls how an inference output becomes pixels.
type DecodeParams struct {
	// Grayscale reads one value per pixel and repeats it into R, G and B.
	// Otherwise three values per pixel are read as R, G, B.
	Grayscale bool

	// FlipX and FlipY mirror the image while it is blitted into the
	// destination.
	FlipX bool
	FlipY bool

	// Layout is the order of RGB values in the output. NHWC (the default)
	// reads pixel i from out[3i], out[3i+1], out[3i+2].
	Layout Layout
}

// RequiredLen returns the minimum output length for a w×h image.
func (p DecodeParams) RequiredLen(w, h int) int {
	if p.Grayscale {
		return w * h
	}
	return w * h * 3
}

// Decoder writes an inference output into a texture. Decode is the CPU
// implementation. Implementations must report ErrShapeMismatch without
// touching dst when out is shorter than p.RequiredLen(w, h).
type Decoder interface {
	Decode(out []float32, w, h int, p DecodeParams, dst *Texture) error
}

// DecodeFunc adapts a function to Decoder.
type DecodeFunc func(out []float32, w, h int, p DecodeParams, dst *Texture) error

// Decode implements Decoder.
func (f DecodeFunc) Decode(out []float32, w, h int, p DecodeParams, dst *Texture) error {
	return f(out, w, h, p, dst)
}

// Decode converts a flat inference output into a w×h image and mirrors it
// into dst according to p. Values are clamped to [0,1]; alpha is always
// opaque. Values past the required length are ignored.
//
// If out is too short, Decode returns ErrShapeMismatch and leaves dst
// exactly as it was.
func Decode(out []float32, w, h int, p DecodeParams, dst *Texture) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, w, h)
	}
	if need := p.RequiredLen(w, h); len(out) < need {
		return fmt.Errorf("%w: have %d values, need %d for %dx%d", ErrShapeMismatch, len(out), need, w, h)
	}
	if dst.released {
		return ErrTextureReleased
	}

	tmp, err := NewTexture(w, h, nil, nil)
	if err != nil {
		return err
	}
	defer tmp.Release()

	plane := w * h
	pix := tmp.Data()
	for i := range plane {
		var r, g, b float32
		switch {
		case p.Grayscale:
			r, g, b = out[i], out[i], out[i]
		case p.Layout == LayoutNCHW:
			r, g, b = out[i], out[plane+i], out[2*plane+i]
		default:
			r, g, b = out[3*i], out[3*i+1], out[3*i+2]
		}
		pix[i*4+0] = unitToByte(r)
		pix[i*4+1] = unitToByte(g)
		pix[i*4+2] = unitToByte(b)
		pix[i*4+3] = 0xff
	}

	return Blit(tmp, dst, FlipScale(p.FlipX, p.FlipY), [2]float64{0, 0}, MirrorSampler)
}

// unitToByte maps [0,1] to [0,255] with rounding. NaN maps to 0.
func unitToByte(v float32) uint8 {
	f := float64(v)
	if math.IsNaN(f) {
		return 0
	}
	return uint8(math.Round(clampFloat(f, 0, 1) * 255))
}
