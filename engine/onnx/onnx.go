// Package onnx runs pix2pix models with ONNX Runtime.
//
// The engine loads a model with one image input and one image output and
// runs it once per pipeline cycle:
//
//	eng, err := onnx.New("edges2cats.onnx", onnx.SignedUnitOptions())
//	if err != nil {
//	    return err
//	}
//	p, err := pix2pix.New(cfg, cam, eng, mtl) // Pipeline.Close closes eng
//
// The shared library is located through Options.LibraryPath or, when
// empty, the ONNXRUNTIME_LIB environment variable.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/gogpu/pix2pix"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("onnx: engine is closed")

// Options configures an Engine.
type Options struct {
	// LibraryPath is the ONNX Runtime shared library.
	LibraryPath string

	// InputName and OutputName are the model's tensor names.
	InputName  string
	OutputName string

	// Packed values v in [0,1] are fed as v*InputScale + InputBias.
	InputScale float32
	InputBias  float32

	// Model outputs o are returned as o*OutputScale + OutputBias.
	OutputScale float32
	OutputBias  float32
}

// DefaultOptions feeds and returns values unchanged.
func DefaultOptions() Options {
	return Options{
		InputName:   "input",
		OutputName:  "output",
		InputScale:  1,
		OutputScale: 1,
	}
}

// SignedUnitOptions is for models trained on [-1,1] images, the usual
// pix2pix export.
func SignedUnitOptions() Options {
	o := DefaultOptions()
	o.InputScale, o.InputBias = 2, -1
	o.OutputScale, o.OutputBias = 0.5, 0.5
	return o
}

// DefaultLibraryPath returns the platform's default library file name.
func DefaultLibraryPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// runner executes one inference on flat float32 data.
type runner interface {
	run(shape []int64, data []float32) ([]float32, error)
	destroy() error
}

// Engine implements pix2pix.Engine. Execute calls are serialized.
type Engine struct {
	mu      sync.Mutex
	r       runner
	opts    Options
	logger  atomic.Pointer[slog.Logger]
	ownsEnv bool
	closed  bool
}

// New loads the model at path. The ONNX Runtime environment is
// initialized on first use and destroyed by the Close of the engine that
// initialized it.
func New(path string, opts Options) (*Engine, error) {
	opts = withDefaults(opts)

	ownsEnv := false
	if !ort.IsInitialized() {
		lib := opts.LibraryPath
		if lib == "" {
			lib = DefaultLibraryPath()
		}
		ort.SetSharedLibraryPath(lib)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: onnxruntime %s: %w", pix2pix.ErrResourceAcquisition, lib, err)
		}
		ownsEnv = true
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName}, nil)
	if err != nil {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, fmt.Errorf("%w: load model %s: %w", pix2pix.ErrResourceAcquisition, path, err)
	}

	e := newEngine(&ortRunner{session: session}, opts)
	e.ownsEnv = ownsEnv
	e.log().Info("onnx model loaded", "path", path, "input", opts.InputName, "output", opts.OutputName)
	return e, nil
}

func newEngine(r runner, opts Options) *Engine {
	return &Engine{
		r:    r,
		opts: withDefaults(opts),
	}
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.InputName == "" {
		o.InputName = d.InputName
	}
	if o.OutputName == "" {
		o.OutputName = d.OutputName
	}
	if o.InputScale == 0 {
		o.InputScale = d.InputScale
	}
	if o.OutputScale == 0 {
		o.OutputScale = d.OutputScale
	}
	return o
}

// SetLogger overrides the engine's logger. Open pipelines call it on every
// pix2pix.SetLogger. nil goes back to pix2pix.Logger().
func (e *Engine) SetLogger(l *slog.Logger) {
	e.logger.Store(l)
}

func (e *Engine) log() *slog.Logger {
	if l := e.logger.Load(); l != nil {
		return l
	}
	return pix2pix.Logger()
}

// Execute implements pix2pix.Engine.
func (e *Engine) Execute(ctx context.Context, in *pix2pix.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	data := affine(in.Data, e.opts.InputScale, e.opts.InputBias)
	out, err := e.r.run(in.Shape, data)
	if err != nil {
		return nil, err
	}
	out = affine(out, e.opts.OutputScale, e.opts.OutputBias)
	e.log().Debug("onnx run", "shape", in.Shape, "outputs", len(out))
	return out, nil
}

// Close releases the session and, if this engine initialized it, the
// ONNX Runtime environment.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.r.destroy()
	if e.ownsEnv {
		err = errors.Join(err, ort.DestroyEnvironment())
	}
	return err
}

// affine returns a copy of v with x*scale+bias applied.
func affine(v []float32, scale, bias float32) []float32 {
	out := make([]float32, len(v))
	if scale == 1 && bias == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x*scale + bias
	}
	return out
}

type ortRunner struct {
	session *ort.DynamicAdvancedSession
}

func (r *ortRunner) run(shape []int64, data []float32) ([]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outputs := []ort.Value{nil}
	if err := r.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx run: output is %T, want float32 tensor", outputs[0])
	}
	res := make([]float32, len(t.GetData()))
	copy(res, t.GetData())
	return res, nil
}

func (r *ortRunner) destroy() error {
	return r.session.Destroy()
}
