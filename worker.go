package chunkdispatch

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
)

// WorkerState represents the current state of a worker
type WorkerState int32

const (
	// StateIdle means the worker is blocked waiting for its next entry.
	StateIdle WorkerState = iota
	StateSetup
	StateChunk
	StateFinalizing
	StateStopped
)

var workerStateNames = [...]string{
	StateIdle:       "IDLE",
	StateSetup:      "SETUP",
	StateChunk:      "CHUNK",
	StateFinalizing: "FINALIZING",
	StateStopped:    "STOPPED",
}

func (s WorkerState) String() string {
	if int(s) >= 0 && int(s) < len(workerStateNames) {
		return workerStateNames[s]
	}
	return "UNKNOWN"
}

// worker owns one queue and one borrowed deferred context. It runs on its
// own goroutine from system creation until it pops a Shutdown entry.
type worker[C, S, D any] struct {
	id     int
	sys    *System[C, S, D]
	dc     C
	queue  *workQueue[S, D]
	logger *zap.SugaredLogger

	// done is set once per frame after buffer has been published
	done *event

	// buffer is written by the worker before done is set and read by the
	// dispatcher after it has received from done
	buffer CommandBuffer

	// exited is closed when the goroutine returns; exitErr is written before
	exited  chan struct{}
	exitErr error

	state atomic.Int32

	// Metrics
	frames         atomic.Uint64
	chunksExecuted atomic.Uint64
	failures       atomic.Uint64
}

// newWorker creates a new worker
func newWorker[C, S, D any](id int, sys *System[C, S, D], dc C) *worker[C, S, D] {
	return &worker[C, S, D]{
		id:     id,
		sys:    sys,
		dc:     dc,
		queue:  newWorkQueue[S, D](sys.config.QueueBytes),
		logger: sys.logger.With("worker", id),
		done:   newEvent(),
		exited: make(chan struct{}),
	}
}

// start launches the worker goroutine. A panic escaping the loop ends the
// goroutine; the dispatcher notices through exited.
func (w *worker[C, S, D]) start() {
	go func() {
		defer close(w.exited)
		defer func() {
			if r := recover(); r != nil {
				w.exitErr = &PanicError{Value: r, Stack: string(debug.Stack())}
				w.logger.Errorw("Worker terminated by panic", "panic", r)
			}
			w.state.Store(int32(StateStopped))
		}()

		if err := w.run(); err != nil {
			w.exitErr = err
			w.logger.Errorw("Worker terminated", "error", err)
		}
	}()
}

// run is the main worker loop. It returns nil after a Shutdown entry and an
// error when a strict callback failure ends the worker.
func (w *worker[C, S, D]) run() error {
	cfg := &w.sys.config

	if cfg.PinWorkerThreads {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	if cfg.OnWorkerStart != nil {
		cfg.OnWorkerStart(w.id)
	}

	for {
		w.setState(StateIdle)
		item := w.queue.wait()

		var err error
		switch item.Kind {
		case KindSetup:
			w.setState(StateSetup)
			err = w.invoke(item, func() error {
				return w.sys.exec.ExecuteSetup(w.dc, item.Static, item.Dynamic)
			})

		case KindChunk:
			w.setState(StateChunk)
			err = w.invoke(item, func() error {
				return w.sys.exec.ExecuteChunk(w.dc, item.Chunk)
			})
			if err == nil {
				w.chunksExecuted.Add(1)
			}

		case KindFinalize:
			w.setState(StateFinalizing)
			if err := w.finalize(); err != nil {
				return err
			}
			continue

		case KindShutdown:
			w.logger.Debugw("Worker shutting down")
			if cfg.OnWorkerStop != nil {
				cfg.OnWorkerStop(w.id)
			}
			return nil
		}

		if err != nil && cfg.StrictCallbacks {
			return err
		}
	}
}

// finalize ends the frame: it publishes the command buffer, rewinds the
// read cursor and signals completion.
func (w *worker[C, S, D]) finalize() error {
	var buf CommandBuffer
	err := w.invoke(WorkItem[S, D]{Kind: KindFinalize}, func() error {
		var ferr error
		buf, ferr = w.sys.exec.FinalizeContext(w.dc)
		return ferr
	})
	if err != nil {
		if w.sys.config.StrictCallbacks {
			return err
		}
		buf = nil
	}

	w.buffer = buf
	w.queue.rewind()
	w.frames.Add(1)
	w.setState(StateIdle)
	w.done.set()
	return nil
}

// invoke runs one callback with panic recovery. A failure is logged and
// counted and the entry is skipped.
func (w *worker[C, S, D]) invoke(item WorkItem[S, D], fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
		if err == nil {
			return
		}

		w.failures.Add(1)
		w.sys.metrics.callbackFailures.Add(1)
		if item.Kind == KindChunk {
			w.logger.Warnw("Callback failed, entry skipped", "kind", item.Kind, "chunk", item.Chunk, "error", err)
		} else {
			w.logger.Warnw("Callback failed, entry skipped", "kind", item.Kind, "error", err)
		}
	}()

	return fn()
}

func (w *worker[C, S, D]) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// getState returns the current worker state
func (w *worker[C, S, D]) getState() WorkerState {
	return WorkerState(w.state.Load())
}

// alive reports whether the worker goroutine is still running.
func (w *worker[C, S, D]) alive() bool {
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}
