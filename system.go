package chunkdispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// System fans the chunks of a frame out to a fixed set of workers, each
// recording into its own deferred context, and submits the recorded
// command buffers to a primary context in worker order.
//
// A System owns its workers, queues and events; nothing is global. Create
// one with NewSystem, call DispatchFrame once per frame and Shutdown once
// at the end.
type System[C, S, D any] struct {
	id      string
	config  Config
	exec    Executor[C, S, D]
	logger  *zap.SugaredLogger
	workers []*worker[C, S, D]

	// mu serializes DispatchFrame and Shutdown. Fields below it are
	// owned by whoever holds it.
	mu          sync.Mutex
	inFlight    []bool
	stopping    bool
	stopped     bool
	shutdownErr error

	closed atomic.Bool

	// Metrics
	metrics systemMetrics
}

// systemMetrics tracks system-wide statistics
type systemMetrics struct {
	frames           atomic.Uint64
	chunks           atomic.Uint64
	callbackFailures atomic.Uint64
	submitFailures   atomic.Uint64
	buffersSubmitted atomic.Uint64
	timeouts         atomic.Uint64

	// frame latency in nanoseconds
	frameSum  atomic.Int64
	frameMax  atomic.Int64
	frameLast atomic.Int64
}

// NewSystem creates the workers and starts them. Each worker receives the
// deferred context returned by contexts for its index.
//
// It returns an error if the configuration is invalid or a deferred
// context cannot be created; no worker is started in that case.
//
// Example:
//
//	sys, err := chunkdispatch.NewSystem[*softgpu.Deferred, softgpu.Scene, softgpu.View](
//	    renderer,
//	    func(id int) (*softgpu.Deferred, error) { return softgpu.NewDeferred(id), nil },
//	    chunkdispatch.WithNumWorkers(4),
//	)
func NewSystem[C, S, D any](exec Executor[C, S, D], contexts ContextFactory[C], opts ...Option) (*System[C, S, D], error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errInvalidConfig("executor must not be nil")
	}
	if contexts == nil {
		return nil, errInvalidConfig("context factory must not be nil")
	}

	size := entrySize[S, D]()
	if cfg.QueueBytes/size < 2 {
		return nil, errInvalidConfig(fmt.Sprintf("QueueBytes %d holds fewer than 2 entries of %d bytes", cfg.QueueBytes, size))
	}

	n := cfg.workerCount()
	s := &System[C, S, D]{
		id:       uuid.NewString(),
		config:   cfg,
		exec:     exec,
		workers:  make([]*worker[C, S, D], 0, n),
		inFlight: make([]bool, n),
	}
	s.logger = cfg.Logger.With("system", s.id)

	// Create every context before starting any goroutine so a failure
	// leaves nothing to tear down.
	dcs := make([]C, n)
	for i := range dcs {
		dc, err := contexts(i)
		if err != nil {
			return nil, fmt.Errorf("chunkdispatch: creating deferred context for worker %d: %w", i, err)
		}
		dcs[i] = dc
	}

	for i, dc := range dcs {
		s.workers = append(s.workers, newWorker(i, s, dc))
	}
	for _, w := range s.workers {
		w.start()
	}

	s.logger.Infow("Dispatch system started",
		"workers", n,
		"queueBytes", cfg.QueueBytes,
		"entryBytes", size,
		"maxChunksPerWorker", s.workers[0].queue.maxChunks(),
	)

	return s, nil
}

// DispatchFrame records one frame across all workers and submits the
// results to primary.
//
// Chunk i goes to worker i mod N, in increasing i. Every worker receives a
// Setup entry first and a Finalize entry last, even with no chunks. The
// call blocks until every worker has finalized, then executes the command
// buffers on primary in worker order 0..N-1, skipping nil buffers.
//
// static is shared by all workers and must not be modified until
// DispatchFrame returns nil or a primary error. After ErrTimeout,
// ErrWorkerPanicked or a ctx error, workers of the abandoned frame may
// still read it; it stays borrowed until a later DispatchFrame or
// Shutdown returns. dynamic is copied.
//
// Errors from primary are collected and returned together once every
// buffer has been offered. Calls are serialized.
func (s *System[C, S, D]) DispatchFrame(ctx context.Context, totalChunks int, static *S, dynamic D, primary PrimaryContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrShutdown
	}
	if totalChunks < 0 {
		return ErrInvalidChunkCount
	}
	if primary == nil {
		return ErrNilPrimary
	}
	if err := s.checkLiveness(); err != nil {
		return err
	}

	// A previous frame that timed out may still be running.
	if err := s.awaitAll(ctx); err != nil {
		return err
	}
	s.discardBuffers()

	if err := s.checkCapacity(totalChunks); err != nil {
		s.logger.Errorw("Frame rejected", "chunks", totalChunks, "error", err)
		return err
	}

	start := time.Now()
	if err := s.enqueueFrame(totalChunks, static, dynamic); err != nil {
		return err
	}

	if err := s.awaitAll(ctx); err != nil {
		s.discardBuffers()
		return err
	}

	err := s.submit(primary)
	s.recordFrame(totalChunks, time.Since(start))
	return err
}

// enqueueFrame pushes Setup, the round-robin chunks and Finalize. Each push
// releases the worker's semaphore once.
func (s *System[C, S, D]) enqueueFrame(totalChunks int, static *S, dynamic D) error {
	n := len(s.workers)

	for i, w := range s.workers {
		w.queue.reset()
		s.inFlight[i] = true
		if err := w.queue.push(setupItem(static, dynamic)); err != nil {
			return s.pushFailed(i, err)
		}
	}

	for c := 0; c < totalChunks; c++ {
		i := c % n
		if err := s.workers[i].queue.push(chunkItem[S, D](c)); err != nil {
			return s.pushFailed(i, err)
		}
	}

	for i, w := range s.workers {
		if err := w.queue.push(finalizeItem[S, D]()); err != nil {
			return s.pushFailed(i, err)
		}
	}

	return nil
}

// pushFailed reports a push that found its queue full despite the capacity
// check. The affected frame never gets a Finalize, so the system is closed
// for further frames.
func (s *System[C, S, D]) pushFailed(workerID int, err error) error {
	s.logger.Errorw("Queue push failed", "worker", workerID, "error", err)
	s.closed.Store(true)
	return errWorker(workerID, ErrQueueOverflow, err)
}

// checkCapacity rejects a frame before anything is queued if the busiest
// worker, worker 0, would not fit its share.
func (s *System[C, S, D]) checkCapacity(totalChunks int) error {
	n := len(s.workers)
	busiest := (totalChunks + n - 1) / n
	if limit := s.workers[0].queue.maxChunks(); busiest > limit {
		return errOverflow(0, busiest, limit)
	}
	return nil
}

// checkLiveness fails fast when any worker has already exited, instead of
// waiting for a completion that can never come.
func (s *System[C, S, D]) checkLiveness() error {
	for i, w := range s.workers {
		if !w.alive() {
			return s.workerDied(i)
		}
	}
	return nil
}

func (s *System[C, S, D]) workerDied(workerID int) error {
	return errWorker(workerID, ErrWorkerPanicked, s.workers[workerID].exitErr)
}

// awaitAll waits for the completion event of every in-flight worker.
func (s *System[C, S, D]) awaitAll(parent context.Context) error {
	ctx := parent
	if s.config.FrameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.config.FrameTimeout)
		defer cancel()
	}

	for i, w := range s.workers {
		if !s.inFlight[i] {
			continue
		}

		select {
		case <-w.done.signaled():
			s.inFlight[i] = false

		case <-w.exited:
			return s.workerDied(i)

		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return fmt.Errorf("chunkdispatch: waiting for worker %d: %w", i, err)
			}
			s.metrics.timeouts.Add(1)
			s.logger.Warnw("Frame timed out", "worker", i, "timeout", s.config.FrameTimeout)
			return errWorker(i, ErrTimeout, nil)
		}
	}

	return nil
}

// submit executes the published buffers in worker order and clears the
// buffer slots.
func (s *System[C, S, D]) submit(primary PrimaryContext) error {
	var errs []error

	for i, w := range s.workers {
		buf := w.buffer
		w.buffer = nil

		if buf == nil {
			s.logger.Debugw("No command buffer, skipping", "worker", i)
			continue
		}

		if err := primary.Execute(buf); err != nil {
			s.metrics.submitFailures.Add(1)
			s.logger.Warnw("Command buffer execution failed", "worker", i, "error", err)
			errs = append(errs, errSubmit(i, err))
			continue
		}
		s.metrics.buffersSubmitted.Add(1)
	}

	return errors.Join(errs...)
}

// discardBuffers clears the buffer slots of settled workers. A worker still
// in flight owns its slot until its completion event is consumed.
func (s *System[C, S, D]) discardBuffers() {
	for i, w := range s.workers {
		if s.inFlight[i] {
			continue
		}
		w.buffer = nil
	}
}

// recordFrame records frame statistics
func (s *System[C, S, D]) recordFrame(chunks int, d time.Duration) {
	frame := s.metrics.frames.Add(1)
	s.metrics.chunks.Add(uint64(chunks))

	nanos := d.Nanoseconds()
	s.metrics.frameSum.Add(nanos)
	s.metrics.frameLast.Store(nanos)
	for {
		current := s.metrics.frameMax.Load()
		if nanos <= current || s.metrics.frameMax.CompareAndSwap(current, nanos) {
			break
		}
	}

	s.logger.Debugw("Frame dispatched", "frame", frame, "chunks", chunks, "duration", d)
}

// Shutdown stops every worker and waits for their goroutines to exit.
// Workers still busy with a frame finish it first. Errors of workers that
// terminated abnormally are returned as an *AggregateError.
//
// If ctx ends first, Shutdown returns its error and may be called again.
// Once it has completed, later calls return the same result.
func (s *System[C, S, D]) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return s.shutdownErr
	}
	s.closed.Store(true)

	// Let in-flight frames drain; pushing onto a queue mid-frame would
	// race with the worker's read cursor.
	for i, w := range s.workers {
		if !s.inFlight[i] {
			continue
		}
		select {
		case <-w.done.signaled():
			s.inFlight[i] = false
		case <-w.exited:
			s.inFlight[i] = false
		case <-ctx.Done():
			return fmt.Errorf("chunkdispatch: shutdown waiting for worker %d: %w", i, ctx.Err())
		}
	}
	s.discardBuffers()

	// Queue Shutdown once; a retry after a ctx expiry only waits again.
	if !s.stopping {
		s.stopping = true
		for i, w := range s.workers {
			if !w.alive() {
				continue
			}
			w.queue.reset()
			if err := w.queue.push(shutdownItem[S, D]()); err != nil {
				s.logger.Errorw("Could not queue shutdown", "worker", i, "error", err)
			}
		}
	}

	var errs []error
	for i, w := range s.workers {
		select {
		case <-w.exited:
		case <-ctx.Done():
			return fmt.Errorf("chunkdispatch: shutdown waiting for worker %d: %w", i, ctx.Err())
		}
		if w.exitErr != nil {
			errs = append(errs, errWorker(i, ErrWorkerPanicked, w.exitErr))
		}
	}

	if len(errs) > 0 {
		s.shutdownErr = &AggregateError{Errors: errs}
	}
	s.stopped = true
	s.logger.Infow("Dispatch system stopped", "frames", s.metrics.frames.Load())
	return s.shutdownErr
}

// IsShutdown reports whether the system no longer accepts frames.
func (s *System[C, S, D]) IsShutdown() bool {
	return s.closed.Load()
}

// NumWorkers returns the number of workers.
func (s *System[C, S, D]) NumWorkers() int {
	return len(s.workers)
}

// ID returns the identifier the system logs under.
func (s *System[C, S, D]) ID() string {
	return s.id
}

// EntrySize returns the number of queue bytes one work item occupies.
func (s *System[C, S, D]) EntrySize() int {
	return s.workers[0].queue.entrySize
}

// MaxChunksPerFrame returns the largest chunk count DispatchFrame accepts.
func (s *System[C, S, D]) MaxChunksPerFrame() int {
	return len(s.workers) * s.workers[0].queue.maxChunks()
}
