package chunkdispatch

import (
	"fmt"
	"strings"
)

// Common errors returned by the dispatch system.
var (
	// ErrQueueOverflow is returned by DispatchFrame when a frame would put
	// more entries on some worker's queue than its byte budget allows. It
	// is a sizing mistake, not a transient condition: raise QueueBytes or
	// lower the per-frame chunk count.
	//
	// Nothing is queued for a frame rejected with ErrQueueOverflow.
	ErrQueueOverflow = &DispatchError{msg: "work queue overflow", worker: -1}

	// ErrQueueFull is returned by a single queue push that finds no free
	// slot. DispatchFrame checks capacity up front and reports any push
	// failure as ErrQueueOverflow.
	ErrQueueFull = &DispatchError{msg: "queue is full", worker: -1}

	// ErrWorkerPanicked is returned when a worker goroutine has terminated
	// unexpectedly. The system cannot complete frames afterwards; callers
	// typically fall back to single-threaded submission.
	//
	// Example:
	//  if errors.Is(err, chunkdispatch.ErrWorkerPanicked) {
	//      renderSerially(frame)
	//  }
	ErrWorkerPanicked = &DispatchError{msg: "worker terminated unexpectedly", worker: -1}

	// ErrTimeout is returned when workers did not finish a frame within
	// the configured FrameTimeout.
	ErrTimeout = &DispatchError{msg: "frame timed out", worker: -1}

	// ErrShutdown is returned by DispatchFrame after Shutdown.
	ErrShutdown = &DispatchError{msg: "system is shut down", worker: -1}

	// ErrNilPrimary is returned when DispatchFrame is given no primary context.
	ErrNilPrimary = &DispatchError{msg: "primary context is nil", worker: -1}

	// ErrInvalidChunkCount is returned for a negative chunk count.
	ErrInvalidChunkCount = &DispatchError{msg: "chunk count must be >= 0", worker: -1}
)

// DispatchError represents an error that occurred within the dispatch
// system. It optionally names the worker involved, matches the sentinel it
// is an instance of with errors.Is, and wraps an underlying cause.
type DispatchError struct {
	msg    string
	worker int            // -1 when no single worker is involved
	kind   *DispatchError // sentinel this error is an instance of
	err    error
}

// Error returns a formatted error message.
// If an underlying error exists, it is included in the output.
func (e *DispatchError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("chunkdispatch: %s: %v", e.msg, e.err)
	}
	return "chunkdispatch: " + e.msg
}

// Unwrap returns the underlying error, allowing use with errors.Is and errors.As.
func (e *DispatchError) Unwrap() error {
	return e.err
}

// Is reports whether e is an instance of the sentinel target.
//
// Example:
//
//	if errors.Is(err, chunkdispatch.ErrQueueOverflow) {
//	    // raise QueueBytes
//	}
func (e *DispatchError) Is(target error) bool {
	return e.kind != nil && target == error(e.kind)
}

// Worker returns the index of the worker the error concerns, or -1.
func (e *DispatchError) Worker() int {
	return e.worker
}

// errInvalidConfig creates an error for invalid system configuration.
// This is returned during system creation when validation fails.
func errInvalidConfig(msg string) error {
	return &DispatchError{msg: "invalid config: " + msg, worker: -1}
}

// errWorker creates an instance of kind attributed to one worker.
func errWorker(workerID int, kind *DispatchError, cause error) error {
	return &DispatchError{
		msg:    fmt.Sprintf("worker %d: %s", workerID, kind.msg),
		worker: workerID,
		kind:   kind,
		err:    cause,
	}
}

// errSubmit wraps a primary context failure for one worker's buffer.
func errSubmit(workerID int, cause error) error {
	return &DispatchError{
		msg:    fmt.Sprintf("worker %d: executing command buffer", workerID),
		worker: workerID,
		err:    cause,
	}
}

// errOverflow describes which worker a frame did not fit on.
func errOverflow(workerID, chunks, limit int) error {
	return &DispatchError{
		msg:    fmt.Sprintf("worker %d would receive %d chunks, limit is %d", workerID, chunks, limit),
		worker: workerID,
		kind:   ErrQueueOverflow,
	}
}

// PanicError wraps a value recovered from a panicking callback or worker.
type PanicError struct {
	Value interface{}
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// AggregateError combines the errors of several workers.
type AggregateError struct {
	Errors []error
}

func (a *AggregateError) Error() string {
	if len(a.Errors) == 0 {
		return "no errors"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s) occurred:", len(a.Errors))
	for i, err := range a.Errors {
		fmt.Fprintf(&b, "\n  [%d] %v", i+1, err)
	}
	return b.String()
}

// Unwrap makes AggregateError compatible with errors.Is/errors.As
func (a *AggregateError) Unwrap() []error {
	return a.Errors
}
