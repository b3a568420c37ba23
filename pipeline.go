package pix2pix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Pipeline captures a camera, runs the frame through an Engine and binds
// the decoded result to a Material, one cycle at a time.
//
// A cycle runs capture → resample → pack → infer → decode. It suspends
// twice so the host frame loop can proceed: after hiding render layers
// (until EndOfFrame) and after decoding (until the next Update). The host
// drives the pipeline by calling Update at the start of every frame and
// EndOfFrame after the frame is rendered, or Tick for both.
//
// All methods are safe for concurrent use. Request may come from any
// goroutine; the part of an accepted cycle that runs before its first
// suspension runs on the caller's goroutine. A request made while a cycle
// is in flight is dropped, never queued. Close may interrupt a cycle that
// is waiting on the Engine: that cycle then ends with ErrClosed and
// allocates nothing more.
type Pipeline struct {
	id       uuid.UUID
	cfg      Config
	opts     options
	cam      Camera
	engine   Engine
	material Material

	busy   atomic.Bool
	closed atomic.Bool

	// mu guards the cycle state below. It is released while the Engine
	// runs so that Close and the frame hooks do not wait on inference.
	mu        sync.Mutex
	state     State
	parked    suspension
	parkFrame uint64
	frame     uint64
	guard     *LayerGuard

	input     *Texture
	inference *Texture
	output    *Texture

	requested atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a pipeline. cam and engine are required; mtl is required
// when cfg.DisplayOutput is set. A camera that is not the main camera is
// disabled until it is needed for a capture.
func New(cfg Config, cam Camera, engine Engine, mtl Material, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cam == nil {
		return nil, fmt.Errorf("%w: camera is required", ErrInvalidConfig)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: engine is required", ErrInvalidConfig)
	}
	if cfg.DisplayOutput && mtl == nil {
		return nil, fmt.Errorf("%w: material is required when display_output is set", ErrInvalidConfig)
	}

	o := defaultOptions(cfg)
	for _, opt := range opts {
		opt(&o)
	}
	if o.follow != nil {
		if _, ok := cam.(Mover); !ok {
			return nil, fmt.Errorf("%w: follow target set but %T cannot be moved", ErrInvalidConfig, cam)
		}
	}

	p := &Pipeline{
		id:       uuid.New(),
		cfg:      cfg,
		opts:     o,
		cam:      cam,
		engine:   engine,
		material: mtl,
	}

	if !cfg.CameraIsMain {
		cam.SetEnabled(false)
	}
	registerLogSink(p, engine)

	p.logger().Info("pipeline created",
		"resolution", cfg.InferenceResolution,
		"channels", cfg.Channels,
		"layout", cfg.Layout.String(),
		"continuous", cfg.Continuous)
	return p, nil
}

// ID returns the pipeline's instance identifier, used in log records.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// Config returns the configuration the pipeline was created with.
func (p *Pipeline) Config() Config { return p.cfg }

// State returns the stage of the cycle in flight, or StateIdle.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a cycle is in flight.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// Output returns the last successfully decoded texture, or nil.
func (p *Pipeline) Output() *Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

// Input returns the last capture, or nil.
func (p *Pipeline) Input() *Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

// InferenceInput returns the last resampled inference input, or nil.
func (p *Pipeline) InferenceInput() *Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inference
}

// Stats returns activity counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Requested: p.requested.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pipeline) logger() *slog.Logger {
	return Logger().With("pipeline", p.id.String())
}

// Request starts an inference cycle. It reports false, and does nothing
// else, when a cycle is already in flight or the pipeline is closed.
//
// An accepted cycle runs immediately up to its first suspension point;
// the returned error is that part's outcome. A failed cycle leaves the
// pipeline idle.
func (p *Pipeline) Request(ctx context.Context) (bool, error) {
	if p.closed.Load() {
		return false, nil
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		p.busy.Store(false)
		return false, nil
	}
	return true, p.startLocked(ctx)
}

// startLocked runs an accepted cycle up to its first suspension. The caller
// holds p.mu and has set busy.
func (p *Pipeline) startLocked(ctx context.Context) error {
	p.requested.Add(1)
	p.state = StateCapturing

	if p.cfg.HideRenderLayer {
		p.guard = HideLayers(p.opts.hideTargets, p.cfg.HiddenLayer, LayerDefault)
		p.park(parkedEndOfFrame)
		return nil
	}
	return p.runLocked(ctx)
}

// Update is the start-of-frame hook. A secondary camera is moved to its
// follow target first. In continuous mode it then requests a cycle when
// idle, and finally resumes a cycle that finished decoding in an earlier
// frame.
func (p *Pipeline) Update(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	p.frame++

	if !p.cfg.CameraIsMain && p.opts.follow != nil {
		p.cam.(Mover).SetPose(p.opts.follow.Pose())
	}

	var err error
	if p.cfg.Continuous && p.busy.CompareAndSwap(false, true) {
		err = p.startLocked(ctx)
	}

	if p.parked == parkedNextFrame && p.parkFrame < p.frame {
		p.finish()
	}
	return err
}

// EndOfFrame is the end-of-frame hook. It resumes a cycle waiting for
// hidden layers to be rendered and runs it through decoding.
func (p *Pipeline) EndOfFrame(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	if p.parked != parkedEndOfFrame {
		return nil
	}
	p.parked = notParked
	return p.runLocked(ctx)
}

// Tick runs one host frame: Update followed by EndOfFrame.
func (p *Pipeline) Tick(ctx context.Context) error {
	if err := p.Update(ctx); err != nil {
		return err
	}
	return p.EndOfFrame(ctx)
}

// Close tears the pipeline down: hidden layers are restored, all three
// textures are released and the engine is closed. Close may be called at
// any point, including while a cycle is suspended or waiting on the
// engine; later calls are no-ops.
func (p *Pipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	p.guard.Restore()
	p.guard = nil
	p.parked = notParked
	p.state = StateIdle

	p.input.Release()
	p.inference.Release()
	p.output.Release()
	p.input, p.inference, p.output = nil, nil, nil
	p.mu.Unlock()

	unregisterLogSink(p)

	// The engine is closed without p.mu so an in-flight cycle can return
	// from Execute and observe the close.
	err := p.engine.Close()
	if err != nil {
		p.logger().Warn("engine close failed", "err", err)
	}

	p.logger().Info("pipeline closed")
	return err
}

func (p *Pipeline) park(s suspension) {
	p.parked = s
	p.parkFrame = p.frame
}

// finish returns the pipeline to idle.
func (p *Pipeline) finish() {
	p.parked = notParked
	p.state = StateIdle
	p.busy.Store(false)
}

// runLocked executes the cycle's stages, restores hidden layers, and
// either parks until the next frame or, on error, goes straight back to
// idle. The caller holds p.mu.
func (p *Pipeline) runLocked(ctx context.Context) error {
	err := p.stagesLocked(ctx)

	p.guard.Restore()
	p.guard = nil

	switch {
	case err != nil && p.closed.Load():
		p.logger().Info("inference cycle abandoned by close", "err", err)
		p.finish()
		return err
	case err != nil:
		p.failed.Add(1)
		p.logger().Error("inference cycle aborted", "state", p.state.String(), "err", err)
		p.finish()
		return err
	}
	p.completed.Add(1)
	p.park(parkedNextFrame)
	return nil
}

func (p *Pipeline) stagesLocked(ctx context.Context) error {
	log := p.logger()
	res := p.cfg.InferenceResolution

	p.state = StateCapturing
	sw, sh := p.opts.screen.Size()
	prev := p.input
	p.input = nil
	in, err := Capture(p.cam, p.opts.alloc, prev, CaptureParams{
		Width:     sw,
		Height:    sh,
		IsMain:    p.cfg.CameraIsMain,
		Primary:   p.opts.primary,
		MatchLens: p.cfg.MatchMainCamera,
	})
	if err != nil {
		return err
	}
	p.input = in
	log.Debug("captured", "width", sw, "height", sh)

	p.state = StateResampling
	p.inference.Release()
	p.inference = nil
	inf, err := p.opts.alloc.Allocate(res, res)
	if err != nil {
		return fmt.Errorf("inference texture %dx%d: %w", res, res, err)
	}
	p.inference = inf
	if err := Resample(in, inf); err != nil {
		return err
	}
	if err := inf.Flush(); err != nil {
		return fmt.Errorf("upload inference texture: %w", err)
	}

	p.state = StatePacking
	tensor, err := p.opts.packer.Pack(inf, p.cfg.Channels, p.cfg.Layout)
	if err != nil {
		return err
	}

	p.state = StateInferring
	p.mu.Unlock()
	out, err := p.engine.Execute(ctx, tensor)
	p.mu.Lock()
	if p.closed.Load() {
		return errors.Join(ErrClosed, err)
	}
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	log.Debug("inference done", "inputs", len(tensor.Data), "outputs", len(out), "pixels", res*res)

	if !p.cfg.DisplayOutput {
		return nil
	}

	p.state = StateDecoding
	return p.decode(out, res)
}

// decode writes out into a fresh output texture and swaps it in only on
// success, so a failed cycle leaves the last good frame bound.
func (p *Pipeline) decode(out []float32, res int) error {
	params := p.cfg.DecodeParams()
	if need := params.RequiredLen(res, res); len(out) < need {
		return fmt.Errorf("%w: have %d values, need %d for %dx%d", ErrShapeMismatch, len(out), need, res, res)
	}

	next, err := p.opts.alloc.Allocate(res, res)
	if err != nil {
		return fmt.Errorf("output texture %dx%d: %w", res, res, err)
	}
	if err := p.opts.decoder.Decode(out, res, res, params, next); err != nil {
		next.Release()
		return err
	}
	if err := next.Flush(); err != nil {
		next.Release()
		return fmt.Errorf("upload output texture: %w", err)
	}

	old := p.output
	p.output = next
	old.Release()

	if err := p.material.SetTexture(p.cfg.MaterialProperty, next); err != nil {
		return fmt.Errorf("bind %s: %w", p.cfg.MaterialProperty, err)
	}
	return nil
}
