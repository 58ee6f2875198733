// Command framebench renders a synthetic scene with the chunk dispatch
// system and the software renderer, logging a digest per frame and the
// dispatch statistics at the end.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tahsin716/chunkdispatch"
	"github.com/tahsin716/chunkdispatch/internal/config"
	"github.com/tahsin716/chunkdispatch/internal/logging"
	"github.com/tahsin716/chunkdispatch/internal/softgpu"
)

type renderSystem = chunkdispatch.System[*softgpu.Deferred, softgpu.Scene, softgpu.View]

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "framebench:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("framebench", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	printConfig := flags.Bool("print-config", false, "print the effective configuration as YAML and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// The logger depends on the settings, so load them first
	loader, err := config.NewLoader(flags, zap.NewNop().Sugar())
	if err != nil {
		return err
	}
	settings, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load the configuration: %w", err)
	}

	if *printConfig {
		data, err := settings.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	sugar, level, err := logging.New(settings.LogLevel, settings.Development)
	if err != nil {
		return err
	}
	defer sugar.Sync()

	runID := uuid.NewString()
	logger := sugar.With("run", runID)
	loader.SetLogger(logger)

	logger.Infow("Starting framebench",
		"frames", settings.Frames,
		"chunks", settings.Chunks,
		"configFile", loader.ConfigFile(),
	)

	sys, err := chunkdispatch.NewSystem[*softgpu.Deferred, softgpu.Scene, softgpu.View](
		softgpu.NewRenderer(),
		func(id int) (*softgpu.Deferred, error) { return softgpu.NewDeferred(id), nil },
		settings.Options(logger)...,
	)
	if err != nil {
		return fmt.Errorf("failed to create the dispatch system: %w", err)
	}

	if settings.Chunks > sys.MaxChunksPerFrame() {
		_ = sys.Shutdown(context.Background())
		return fmt.Errorf("%d chunks per frame exceed the limit of %d; raise --queue-bytes or --workers",
			settings.Chunks, sys.MaxChunksPerFrame())
	}

	var chunks atomic.Int64
	chunks.Store(int64(settings.Chunks))

	// Wire up a signal handler to receive shutdown requests
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, finished := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer finished()
		return render(gctx, sys, settings.Frames, &chunks, logger)
	})

	g.Go(func() error {
		return loader.Watch(gctx, func(s *config.Settings) {
			if s.Chunks > sys.MaxChunksPerFrame() {
				logger.Warnw("Ignoring chunk count above the queue limit", "chunks", s.Chunks, "limit", sys.MaxChunksPerFrame())
			} else {
				chunks.Store(int64(s.Chunks))
			}
			if lvl, err := logging.ParseLevel(s.LogLevel); err == nil {
				level.SetLevel(lvl)
			}
		})
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sys.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Dispatch system did not shut down cleanly", "error", err)
	}

	logStats(logger, sys.Stats())
	return runErr
}

// render dispatches frames until the frame budget is used up or ctx ends.
// If a worker dies the remaining frames are rendered on this goroutine.
func render(ctx context.Context, sys *renderSystem, frames int, chunks *atomic.Int64, logger *zap.SugaredLogger) error {
	immediate := softgpu.NewImmediate()
	var scene *softgpu.Scene

	for frame := uint64(0); frames == 0 || frame < uint64(frames); frame++ {
		if ctx.Err() != nil {
			return nil
		}

		n := int(chunks.Load())
		if scene == nil || len(scene.Meshes) != n {
			scene = buildScene(n)
		}
		view := softgpu.View{Frame: frame, ViewProj: viewProj(frame)}

		err := sys.DispatchFrame(ctx, n, scene, view, immediate)
		res := immediate.EndFrame()

		switch {
		case err == nil:
			logger.Debugw("Frame rendered", "frame", frame, "digest", res.DigestHex(), "draws", res.Draws, "vertices", res.Vertices)

		case errors.Is(err, chunkdispatch.ErrTimeout):
			logger.Warnw("Frame abandoned", "frame", frame, "error", err)

		case errors.Is(err, chunkdispatch.ErrWorkerPanicked):
			logger.Errorw("Worker lost, rendering the remaining frames serially", "frame", frame, "error", err)
			return renderSerially(ctx, frame, frames, scene, logger)

		case ctx.Err() != nil:
			return nil

		default:
			return err
		}
	}
	return nil
}

// renderSerially records every frame on a single deferred context.
func renderSerially(ctx context.Context, from uint64, frames int, scene *softgpu.Scene, logger *zap.SugaredLogger) error {
	renderer := softgpu.NewRenderer()
	dc := softgpu.NewDeferred(0)
	immediate := softgpu.NewImmediate()

	for frame := from; frames == 0 || frame < uint64(frames); frame++ {
		if ctx.Err() != nil {
			return nil
		}

		view := softgpu.View{Frame: frame, ViewProj: viewProj(frame)}
		if err := renderer.ExecuteSetup(dc, scene, view); err != nil {
			return err
		}
		for i := range scene.Meshes {
			if err := renderer.ExecuteChunk(dc, i); err != nil {
				logger.Warnw("Chunk failed, skipped", "frame", frame, "chunk", i, "error", err)
			}
		}
		buf, err := renderer.FinalizeContext(dc)
		if err != nil {
			return err
		}
		if err := immediate.Execute(buf); err != nil {
			return err
		}

		res := immediate.EndFrame()
		logger.Debugw("Frame rendered serially", "frame", frame, "digest", res.DigestHex(), "draws", res.Draws)
	}
	return nil
}

// buildScene creates n meshes of varying size.
func buildScene(n int) *softgpu.Scene {
	scene := &softgpu.Scene{Meshes: make([]softgpu.Mesh, n)}
	for i := range scene.Meshes {
		scene.Meshes[i] = softgpu.Mesh{
			Name:     fmt.Sprintf("mesh-%04d", i),
			Vertices: 36 * (1 + i%16),
		}
	}
	return scene
}

// viewProj returns a camera rotation about the Y axis that advances each frame.
func viewProj(frame uint64) softgpu.Matrix {
	angle := float64(frame) * 0.01
	c, s := float32(math.Cos(angle)), float32(math.Sin(angle))

	m := softgpu.Identity()
	m[0], m[2] = c, -s
	m[8], m[10] = s, c
	return m
}

func logStats(logger *zap.SugaredLogger, stats chunkdispatch.Stats) {
	logger.Infow("Benchmark complete",
		"frames", stats.Frames,
		"chunks", stats.ChunksDispatched,
		"workers", stats.NumWorkers,
		"frameAvg", stats.FrameAvg,
		"frameMax", stats.FrameMax,
		"callbackFailures", stats.CallbackFailures,
		"submitFailures", stats.SubmitFailures,
		"timeouts", stats.Timeouts,
	)

	for _, ws := range stats.WorkerStats {
		logger.Debugw("Worker statistics",
			"worker", ws.WorkerID,
			"frames", ws.Frames,
			"chunks", ws.ChunksExecuted,
			"failures", ws.Failures,
			"queueHighWater", ws.QueueHighWater,
			"queueCapacity", ws.QueueCapacity,
			"state", ws.State,
		)
	}
}
