package chunkdispatch

//go:generate mockgen -destination=mocks/primary.go -package=mocks . PrimaryContext

// CommandBuffer is the recorded, replayable output of a deferred context.
// The dispatch system never looks inside it.
type CommandBuffer = any

// PrimaryContext executes command buffers in the order it receives them.
// It is only ever used from the goroutine calling DispatchFrame.
type PrimaryContext interface {
	Execute(buf CommandBuffer) error
}

// Executor records work into deferred contexts. C is the caller's deferred
// context type, S the per-frame static parameters and D the per-frame
// dynamic parameters.
//
// Each method is called from the worker goroutine that owns dc; a given dc
// is never used by two goroutines at once. Returned errors and panics are
// logged and the entry is skipped, unless StrictCallbacks is set.
type Executor[C, S, D any] interface {
	// ExecuteSetup starts recording a frame and applies its state.
	ExecuteSetup(dc C, static *S, dynamic D) error

	// ExecuteChunk records one chunk.
	ExecuteChunk(dc C, chunk int) error

	// FinalizeContext stops recording and returns the command buffer.
	// A nil buffer is not submitted.
	FinalizeContext(dc C) (CommandBuffer, error)
}

// ContextFactory supplies the deferred context for a worker. It is called
// once per worker while the System is created. The caller keeps ownership
// of the returned context and must keep it alive until Shutdown returns.
type ContextFactory[C any] func(workerID int) (C, error)
