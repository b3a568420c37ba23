package pix2pix

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := pix2pix.New(cfg, cam, engine, mtl,
//	    pix2pix.WithScreen(pix2pix.FixedScreen{Width: 1280, Height: 720}),
//	    pix2pix.WithHideTargets(strokes),
//	)
type Option func(*options)

type options struct {
	alloc       Allocator
	primary     Camera
	screen      Screen
	hideTargets []SceneNode
	follow      PoseSource
	packer      Packer
	decoder     Decoder
}

func defaultOptions(cfg Config) options {
	return options{
		alloc:   HeapAllocator{},
		// Without a host screen, capture at the inference size so the
		// resample stage is a plain copy.
		screen:  FixedScreen{Width: cfg.InferenceResolution, Height: cfg.InferenceResolution},
		packer:  PackFunc(Pack),
		decoder: DecodeFunc(Decode),
	}
}

// WithAllocator sets the allocator for capture, inference and output
// textures. The default is HeapAllocator.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.alloc = a
		}
	}
}

// WithPrimaryCamera sets the main display camera whose lens is copied
// when Config.MatchMainCamera is set.
func WithPrimaryCamera(c Camera) Option {
	return func(o *options) {
		o.primary = c
	}
}

// WithScreen sets the display whose size determines the capture size.
func WithScreen(s Screen) Option {
	return func(o *options) {
		if s != nil {
			o.screen = s
		}
	}
}

// WithHideTargets sets the scene subtrees hidden during capture when
// Config.HideRenderLayer is set.
func WithHideTargets(nodes ...SceneNode) Option {
	return func(o *options) {
		o.hideTargets = append(o.hideTargets, nodes...)
	}
}

// WithFollowTarget makes a secondary capture camera copy target's pose at
// the start of every frame. The camera must implement Mover. It has no
// effect when Config.CameraIsMain is set.
func WithFollowTarget(target PoseSource) Option {
	return func(o *options) {
		o.follow = target
	}
}

// WithPacker replaces the CPU tensor packer.
func WithPacker(pk Packer) Option {
	return func(o *options) {
		if pk != nil {
			o.packer = pk
		}
	}
}

// WithDecoder replaces the CPU output decoder.
func WithDecoder(d Decoder) Option {
	return func(o *options) {
		if d != nil {
			o.decoder = d
		}
	}
}
