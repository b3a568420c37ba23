// Command pix2pix runs an image-to-image model over a sequence of frames.
//
// Frames are read from a directory of png, jpeg or webp files and played
// back as the capture camera. The last decoded output is written as PNG,
// and with -preview every output is streamed to browsers over websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/software"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/pix2pix"
	"github.com/gogpu/pix2pix/engine/onnx"
	"github.com/gogpu/pix2pix/gpu"
	"github.com/gogpu/pix2pix/integration/wspreview"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		modelPath  = flag.String("model", "", "ONNX model (empty: identity engine)")
		signedUnit = flag.Bool("signed", true, "model works on [-1,1] images")
		inputDir   = flag.String("input", "", "directory of input frames")
		output     = flag.String("output", "pix2pix.png", "PNG file for the last output")
		frames     = flag.Int("frames", 0, "frames to run (0: until interrupted)")
		fps        = flag.Int("fps", 30, "frame rate")
		preview    = flag.String("preview", "", "websocket preview listen address, e.g. :8090")
		gpuBackend = flag.String("gpu", "", "mirror textures on a GPU: vulkan or software")
		gpuStages  = flag.Bool("gpu-stages", false, "pack and decode with compute shaders on the -gpu device")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	pix2pix.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *inputDir == "" {
		log.Fatal("-input is required")
	}
	if *fps <= 0 {
		log.Fatalf("invalid -fps %d", *fps)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, runConfig{
		configPath: *configPath,
		modelPath:  *modelPath,
		signedUnit: *signedUnit,
		inputDir:   *inputDir,
		output:     *output,
		frames:     *frames,
		fps:        *fps,
		preview:    *preview,
		gpuBackend: *gpuBackend,
		gpuStages:  *gpuStages,
	}); err != nil {
		log.Fatal(err)
	}
}

type runConfig struct {
	configPath string
	modelPath  string
	signedUnit bool
	inputDir   string
	output     string
	frames     int
	fps        int
	preview    string
	gpuBackend string
	gpuStages  bool
}

func run(ctx context.Context, rc runConfig) error {
	cfg := pix2pix.DefaultConfig()
	if rc.configPath != "" {
		var err error
		if cfg, err = pix2pix.LoadConfig(rc.configPath); err != nil {
			return err
		}
	}

	cam, err := loadSequence(rc.inputDir)
	if err != nil {
		return err
	}

	engine, err := newEngine(rc.modelPath, rc.signedUnit)
	if err != nil {
		return err
	}

	var materials pix2pix.Materials
	if rc.preview != "" {
		srv := wspreview.New()
		go func() {
			if err := srv.ListenAndServe(ctx, rc.preview); err != nil {
				pix2pix.Logger().Error("preview server stopped", "err", err)
			}
		}()
		materials = append(materials, srv)
	}

	opts := []pix2pix.Option{pix2pix.WithScreen(cam), pix2pix.WithAllocator(pix2pix.NewPoolAllocator(4))}
	if rc.gpuBackend != "" {
		alloc, err := openGPU(rc.gpuBackend)
		if err != nil {
			_ = engine.Close()
			return err
		}
		defer alloc.Close()
		opts = append(opts, pix2pix.WithAllocator(alloc))

		if rc.gpuStages {
			stages, err := gpu.NewCompute(alloc)
			if err != nil {
				pix2pix.Logger().Warn("gpu stages unavailable, packing and decoding on the CPU", "err", err)
			} else {
				defer stages.Close()
				opts = append(opts, pix2pix.WithPacker(stages), pix2pix.WithDecoder(stages))
			}
		}
	}

	// The output texture is saved after the loop, so the CLI always
	// decodes even without a preview.
	cfg.DisplayOutput = true
	p, err := pix2pix.New(cfg, cam, engine, materials, opts...)
	if err != nil {
		_ = engine.Close()
		return err
	}

	loopErr := loop(ctx, p, rc.frames, rc.fps)

	if out := p.Output(); out != nil && rc.output != "" {
		if err := out.SavePNG(rc.output); err != nil {
			loopErr = errors.Join(loopErr, fmt.Errorf("save output: %w", err))
		} else {
			pix2pix.Logger().Info("output saved", "path", rc.output)
		}
	}
	s := p.Stats()
	pix2pix.Logger().Info("done",
		"requested", s.Requested, "completed", s.Completed,
		"failed", s.Failed, "dropped", s.Dropped)

	return errors.Join(loopErr, p.Close())
}

// loop drives the pipeline like a host frame loop: a request at the start
// of each frame when not in continuous mode, then Update and EndOfFrame.
func loop(ctx context.Context, p *pix2pix.Pipeline, frames, fps int) error {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for n := 0; frames == 0 || n < frames; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if !p.Config().Continuous {
			// Errors are logged by the pipeline; keep running.
			_, _ = p.Request(ctx)
		}
		_ = p.Tick(ctx)
	}
	return nil
}

func newEngine(modelPath string, signedUnit bool) (pix2pix.Engine, error) {
	if modelPath == "" {
		pix2pix.Logger().Warn("no model given, using identity engine")
		return pix2pix.IdentityEngine, nil
	}
	opts := onnx.DefaultOptions()
	if signedUnit {
		opts = onnx.SignedUnitOptions()
	}
	return onnx.New(modelPath, opts)
}

func openGPU(name string) (*gpu.Allocator, error) {
	switch name {
	case "vulkan":
		return gpu.Open(gputypes.BackendVulkan)
	case "software":
		return gpu.Open(gputypes.BackendEmpty)
	default:
		return nil, fmt.Errorf("unknown -gpu backend %q", name)
	}
}
