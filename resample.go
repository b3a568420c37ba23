package pix2pix

import (
	"golang.org/x/image/draw"
)

// Resample rescales src into dst with bilinear filtering. dst keeps its
// own size; for the inference stage it is a square of the configured
// resolution. Alpha in dst is forced opaque.
func Resample(src, dst *Texture) error {
	if src.released || dst.released {
		return ErrTextureReleased
	}
	draw.BiLinear.Scale(dst.RGBA(), dst.Bounds(), src.RGBA(), src.Bounds(), draw.Src, nil)

	data := dst.Data()
	for i := 3; i < len(data); i += 4 {
		data[i] = 0xff
	}
	return nil
}
