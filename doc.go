// Package pix2pix runs an image-to-image network on a camera's rendered
// frame and shows the result on a material.
//
// # Overview
//
// One inference cycle is
//
//	capture → resample → pack → infer → decode → bind
//
// The camera renders into an off-screen texture at screen size, the texture
// is rescaled bilinearly to a square inference resolution, packed into a
// float tensor, handed to an Engine, and the output values are decoded back
// into pixels, mirrored per the flip flags and bound to a Material slot.
//
// # Quick Start
//
//	cfg := pix2pix.DefaultConfig()
//	cfg.InferenceResolution = 256
//
//	p, err := pix2pix.New(cfg, camera, engine, material)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	// once per frame, from the host loop
//	_ = p.Tick(ctx)
//
//	// on demand
//	_, _ = p.Request(ctx)
//
// # Scheduling
//
// The pipeline never starts goroutines. The host calls Update at the start
// of a frame and EndOfFrame after rendering it. A cycle that hides render
// layers waits for EndOfFrame so the capture does not include them; every
// cycle waits one more frame after decoding before the pipeline accepts the
// next request. Requests arriving in between are dropped.
//
// Request may also come from other goroutines. Cycle state is guarded by a
// mutex that is released while the Engine runs, so Close never waits on
// inference; a cycle interrupted that way ends with ErrClosed.
//
// # Collaborators
//
// The host supplies a Camera, an Engine, a Material and optionally
// SceneNode subtrees to hide. A secondary camera that implements Mover can
// follow a PoseSource (WithFollowTarget). The pack and decode stages can be
// replaced through WithPacker and WithDecoder. Adapters live in
// sub-packages:
//   - engine/onnx: ONNX Runtime engine
//   - gpu: textures mirrored on a gogpu/wgpu HAL device, and pack and
//     decode as compute shaders
//   - integration/gpumaterial: output bound to a gpucontext texture
//   - integration/wspreview: output streamed to browsers over websocket
//
// # Coordinate System
//
// Textures are row-major with the origin at the top-left. Tensors are
// NHWC by default (channels interleaved per pixel); NCHW is available for
// models exported with planar inputs.
//
// # Inference-space Helpers
//
// ScreenMapper and SplitByDistance are not used by the Pipeline. They are
// for hosts that read positions off an inference image, such as a model
// that outputs strokes: ScreenMapper turns an inference pixel back into
// screen coordinates with the configured input flips, and SplitByDistance
// breaks a point sequence into polylines wherever consecutive points jump
// further than a threshold.
package pix2pix

// Version is the current version of the library.
const Version = "0.1.0"
