package pix2pix

import "math"

// Vec3 is a point in world space.
type Vec3 struct {
	X, Y, Z float64
}

// Distance returns the Euclidean distance between a and b.
func (a Vec3) Distance(b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ScreenMapper maps pixel coordinates of the inference texture back to
// screen coordinates, applying the input flips.
type ScreenMapper struct {
	InferenceWidth, InferenceHeight int
	ScreenWidth, ScreenHeight       int
	FlipX, FlipY                    bool
}

// NewScreenMapper builds a mapper from cfg for a screen of the given size.
func NewScreenMapper(cfg Config, screenW, screenH int) ScreenMapper {
	return ScreenMapper{
		InferenceWidth:  cfg.InferenceResolution,
		InferenceHeight: cfg.InferenceResolution,
		ScreenWidth:     screenW,
		ScreenHeight:    screenH,
		FlipX:           cfg.FlipInputX,
		FlipY:           cfg.FlipInputY,
	}
}

// Map converts inference pixel (px, py) to screen coordinates.
func (m ScreenMapper) Map(px, py int) (x, y float64) {
	sw, sh := float64(m.ScreenWidth), float64(m.ScreenHeight)
	x = float64(px) / float64(m.InferenceWidth) * sw
	y = float64(py) / float64(m.InferenceHeight) * sh
	if m.FlipX {
		x = sw - x
	}
	if m.FlipY {
		y = sh - y
	}
	return x, y
}

// SplitByDistance breaks a stroke wherever two consecutive points are
// more than threshold apart. An empty input yields no strokes.
func SplitByDistance(points []Vec3, threshold float64) [][]Vec3 {
	if len(points) == 0 {
		return nil
	}
	var out [][]Vec3
	cur := []Vec3{points[0]}
	for i := 1; i < len(points); i++ {
		if points[i-1].Distance(points[i]) > threshold {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, points[i])
	}
	return append(out, cur)
}
