// Package chunkdispatch splits the per-frame recording of independent
// chunks of work across a fixed set of worker goroutines, each recording
// into its own deferred context, and replays the results on a primary
// context in a deterministic order.
//
// It is the pattern behind multithreaded deferred-context rendering: the
// render loop owns an immediate context, every worker owns a deferred one,
// and each frame's draw calls are recorded in parallel into command
// buffers that the render loop then executes one after another.
//
// # Key Features
//
//   - Fixed worker set sized from the physical core count
//   - One bounded single-producer/single-consumer queue per worker
//   - Deterministic round-robin partition: chunk i runs on worker i mod N
//   - Command buffers submitted in worker order, every frame
//   - Callback failures logged and skipped, never crashing the loop
//   - Dead-worker detection, frame timeouts and clean shutdown
//
// # Quick Start
//
// The caller supplies an Executor that knows how to record into its
// deferred context type, and a factory creating one context per worker:
//
//	sys, err := chunkdispatch.NewSystem[*softgpu.Deferred, softgpu.Scene, softgpu.View](
//	    softgpu.NewRenderer(),
//	    func(id int) (*softgpu.Deferred, error) { return softgpu.NewDeferred(id), nil },
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Shutdown(context.Background())
//
//	immediate := softgpu.NewImmediate()
//	for frame := uint64(0); running(); frame++ {
//	    view := softgpu.View{Frame: frame, ViewProj: camera.Matrix()}
//	    if err := sys.DispatchFrame(ctx, len(scene.Meshes), &scene, view, immediate); err != nil {
//	        log.Printf("frame %d: %v", frame, err)
//	    }
//	}
//
// # Frame Protocol
//
// For every frame each worker's queue receives, in order:
//
//	Setup(static, dynamic)  exactly once
//	Chunk(i)                for every i with i mod N == worker
//	Finalize                exactly once
//
// Setup carries a pointer to the static parameters, shared by all workers
// for the duration of the call, and a copy of the dynamic parameters.
// Finalize makes the worker end recording, publish its command buffer and
// signal completion. DispatchFrame waits for all N completions before it
// executes any buffer.
//
// # Configuration
//
// Customize the system using functional options:
//
//	sys, err := chunkdispatch.NewSystem[C, S, D](exec, contexts,
//	    chunkdispatch.WithNumWorkers(8),
//	    chunkdispatch.WithQueueBytes(64*1024),
//	    chunkdispatch.WithFrameTimeout(50*time.Millisecond),
//	    chunkdispatch.WithLogger(logger.Sugar()),
//	)
//
// QueueBytes bounds how many entries a worker can take per frame. A frame
// whose busiest worker would not fit is rejected with ErrQueueOverflow
// before anything is queued; use MaxChunksPerFrame to size scenes.
//
// # Error Handling
//
// Executor callbacks that fail or panic are logged, counted in Stats and
// skipped; the frame still completes. WithStrictCallbacks(true) turns a
// failure into the worker's termination instead, which DispatchFrame then
// reports as ErrWorkerPanicked. Overflow, timeout and worker failures
// match their sentinel with errors.Is and report the worker involved
// through (*DispatchError).Worker.
//
// # Shutdown
//
//	if err := sys.Shutdown(ctx); err != nil {
//	    log.Printf("shutdown: %v", err)
//	}
//
// Shutdown queues a Shutdown entry to every worker and waits for their
// goroutines. Once it returns nil or an *AggregateError, deferred contexts
// are never touched again. If ctx ends first, workers may still be
// draining an abandoned frame.
//
// # Thread Safety
//
// DispatchFrame and Shutdown are serialized internally; Stats, NumWorkers
// and IsShutdown may be called from any goroutine. Each deferred context is
// only ever used by the worker that owns it, and the primary context only
// by the goroutine calling DispatchFrame.
package chunkdispatch
