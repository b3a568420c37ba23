package pix2pix

import "fmt"

// Lens holds the projection parameters copied between cameras.
type Lens struct {
	Near        float64
	Far         float64
	FieldOfView float64
	FocalLength float64
}

// Camera is a scene camera that can render into a texture.
type Camera interface {
	// Render draws the camera's view for the current frame into dst.
	// dst is the camera's target only for the duration of the call.
	Render(dst *Texture) error

	Enabled() bool
	SetEnabled(enabled bool)

	Lens() Lens
	SetLens(l Lens)
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// Pose is a position and rotation in world space.
type Pose struct {
	Position Vec3
	Rotation Quat
}

// Mover is implemented by cameras that can be placed in the world.
type Mover interface {
	SetPose(Pose)
}

// PoseSource reports the pose of a scene object, such as the target a
// secondary capture camera follows.
type PoseSource interface {
	Pose() Pose
}

// PoseFunc adapts a function to PoseSource.
type PoseFunc func() Pose

// Pose implements PoseSource.
func (f PoseFunc) Pose() Pose { return f() }

// Screen reports the display resolution used for captures.
type Screen interface {
	Size() (width, height int)
}

// FixedScreen is a Screen with a constant size.
type FixedScreen struct {
	Width, Height int
}

// Size implements Screen.
func (s FixedScreen) Size() (width, height int) { return s.Width, s.Height }

// CaptureParams describes a single capture.
type CaptureParams struct {
	// Width and Height of the capture, normally the screen size.
	Width, Height int

	// IsMain marks cam as the primary display camera. A secondary camera
	// is enabled only for the duration of the render.
	IsMain bool

	// Primary, when non-nil and MatchLens is set, supplies the lens that
	// is copied onto a secondary camera before rendering.
	Primary   Camera
	MatchLens bool
}

// Capture renders cam into a newly allocated texture of the requested
// size. prev, the previous capture, is released first so captures never
// accumulate. The camera's enabled state is restored on every path.
func Capture(cam Camera, alloc Allocator, prev *Texture, p CaptureParams) (*Texture, error) {
	prev.Release()

	tex, err := alloc.Allocate(p.Width, p.Height)
	if err != nil {
		return nil, fmt.Errorf("capture %dx%d: %w", p.Width, p.Height, err)
	}

	if !p.IsMain {
		wasEnabled := cam.Enabled()
		cam.SetEnabled(true)
		defer cam.SetEnabled(wasEnabled)
		if p.MatchLens && p.Primary != nil {
			cam.SetLens(p.Primary.Lens())
		}
	}

	if err := cam.Render(tex); err != nil {
		tex.Release()
		return nil, fmt.Errorf("capture render: %w", err)
	}
	return tex, nil
}
