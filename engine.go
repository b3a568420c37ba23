package pix2pix

import "context"

// Engine runs the image-to-image network.
//
// Execute is called once per inference cycle with a freshly packed input
// and returns the flat output values. The call blocks the cycle; the
// input tensor is not used after Execute returns. Close releases the
// engine's runtime resources and is called once, from Pipeline.Close.
//
// Implementations live in sub-packages (engine/onnx). Tests and demos can
// use EngineFunc.
type Engine interface {
	Execute(ctx context.Context, in *Tensor) ([]float32, error)
	Close() error
}

// EngineFunc adapts a function to the Engine interface. Close is a no-op.
type EngineFunc func(ctx context.Context, in *Tensor) ([]float32, error)

// Execute implements Engine.
func (f EngineFunc) Execute(ctx context.Context, in *Tensor) ([]float32, error) {
	return f(ctx, in)
}

// Close implements Engine.
func (f EngineFunc) Close() error { return nil }

// IdentityEngine returns its input values unchanged.
var IdentityEngine = EngineFunc(func(_ context.Context, in *Tensor) ([]float32, error) {
	out := make([]float32, len(in.Data))
	copy(out, in.Data)
	return out, nil
})
