package pix2pix

import (
	"math"

	"github.com/gogpu/gputypes"
)

// Sampler selects how Blit reads the source texture.
type Sampler struct {
	Filter  gputypes.FilterMode
	Address gputypes.AddressMode
}

// MirrorSampler is the sampler used for flip blits: nearest filtering so
// pixels move without blending, repeat addressing so a negative scale
// wraps back into the texture.
var MirrorSampler = Sampler{
	Filter:  gputypes.FilterModeNearest,
	Address: gputypes.AddressModeRepeat,
}

// LinearSampler filters bilinearly and clamps at the edges.
var LinearSampler = Sampler{
	Filter:  gputypes.FilterModeLinear,
	Address: gputypes.AddressModeClampToEdge,
}

// FlipScale returns the blit scale that mirrors the requested axes.
func FlipScale(flipX, flipY bool) [2]float64 {
	s := [2]float64{1, 1}
	if flipX {
		s[0] = -1
	}
	if flipY {
		s[1] = -1
	}
	return s
}

// Blit draws src into dst through a texture-coordinate transform.
//
// Every destination pixel centre is mapped to normalized coordinates
// (u, v) in [0,1], transformed as uv*scale + offset, wrapped by the
// sampler's address mode and sampled from src. A scale of (-1, 1) with a
// zero offset and repeat addressing therefore mirrors horizontally.
func Blit(src, dst *Texture, scale, offset [2]float64, s Sampler) error {
	if src.released || dst.released {
		return ErrTextureReleased
	}
	dw, dh := dst.Size()
	for y := range dh {
		v := (float64(y)+0.5)/float64(dh)*scale[1] + offset[1]
		v = address(v, s.Address)
		for x := range dw {
			u := (float64(x)+0.5)/float64(dw)*scale[0] + offset[0]
			u = address(u, s.Address)

			var r, g, b, a uint8
			if s.Filter == gputypes.FilterModeLinear {
				r, g, b, a = sampleBilinear(src, u, v)
			} else {
				r, g, b, a = sampleNearest(src, u, v)
			}
			dst.SetPixelRGBA(x, y, r, g, b, a)
		}
	}
	return nil
}

// address wraps a normalized coordinate into [0,1].
func address(c float64, mode gputypes.AddressMode) float64 {
	switch mode {
	case gputypes.AddressModeRepeat:
		return c - math.Floor(c)
	case gputypes.AddressModeMirrorRepeat:
		f := math.Mod(math.Abs(c), 2)
		if f > 1 {
			return 2 - f
		}
		return f
	default:
		return clampFloat(c, 0, 1)
	}
}

func sampleNearest(t *Texture, u, v float64) (r, g, b, a uint8) {
	w, h := t.Size()
	x := clampInt(int(math.Floor(u*float64(w))), 0, w-1)
	y := clampInt(int(math.Floor(v*float64(h))), 0, h-1)
	return t.PixelRGBA(x, y)
}

func sampleBilinear(t *Texture, u, v float64) (r, g, b, a uint8) {
	w, h := t.Size()

	fx := u*float64(w) - 0.5
	fy := v*float64(h) - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)
	x0 = clampInt(x0, 0, w-1)
	y0 = clampInt(y0, 0, h-1)

	r00, g00, b00, a00 := t.PixelRGBA(x0, y0)
	r10, g10, b10, a10 := t.PixelRGBA(x1, y0)
	r01, g01, b01, a01 := t.PixelRGBA(x0, y1)
	r11, g11, b11, a11 := t.PixelRGBA(x1, y1)

	mix := func(c00, c10, c01, c11 uint8) uint8 {
		top := float64(c00)*(1-tx) + float64(c10)*tx
		bot := float64(c01)*(1-tx) + float64(c11)*tx
		return uint8(math.Round(clampFloat(top*(1-ty)+bot*ty, 0, 255)))
	}
	return mix(r00, r10, r01, r11), mix(g00, g10, g01, g11), mix(b00, b10, b01, b11), mix(a00, a10, a01, a11)
}

func clampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func clampFloat(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
