package chunkdispatch

// Kind identifies the variant carried by a WorkItem.
type Kind uint8

const (
	// KindSetup configures a worker's deferred context for a new frame.
	// It is always the first entry a worker sees in a frame.
	KindSetup Kind = iota
	// KindChunk asks the worker to record one chunk of work.
	KindChunk
	// KindFinalize ends recording, publishes the command buffer and
	// signals frame completion. It is always the last entry of a frame.
	KindFinalize
	// KindShutdown makes the worker leave its loop.
	KindShutdown
)

var kindNames = [...]string{
	KindSetup:    "Setup",
	KindChunk:    "Chunk",
	KindFinalize: "Finalize",
	KindShutdown: "Shutdown",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// WorkItem is one unit of deferred work queued to a worker.
//
// Only the fields belonging to Kind are meaningful:
//   - KindSetup: Static and Dynamic
//   - KindChunk: Chunk
//   - KindFinalize, KindShutdown: none
//
// Static is borrowed from the caller of DispatchFrame. It is released when
// that call succeeds, or, for an abandoned frame, when a later
// DispatchFrame or Shutdown returns. Dynamic is a copy, so the caller may prepare
// the next frame's parameters while workers still run this one.
type WorkItem[S, D any] struct {
	Kind    Kind
	Chunk   int
	Static  *S
	Dynamic D
}

func setupItem[S, D any](static *S, dynamic D) WorkItem[S, D] {
	return WorkItem[S, D]{Kind: KindSetup, Static: static, Dynamic: dynamic}
}

func chunkItem[S, D any](chunk int) WorkItem[S, D] {
	return WorkItem[S, D]{Kind: KindChunk, Chunk: chunk}
}

func finalizeItem[S, D any]() WorkItem[S, D] {
	return WorkItem[S, D]{Kind: KindFinalize}
}

func shutdownItem[S, D any]() WorkItem[S, D] {
	return WorkItem[S, D]{Kind: KindShutdown}
}
