package chunkdispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Test Collaborators
// ============================================================================

type testStatic struct {
	name string
}

type testDynamic struct {
	frame int
}

// traceContext is the deferred context used by tests. Each worker owns one,
// so it records without locking; tests read it after DispatchFrame returns.
type traceContext struct {
	id     int
	events []string
	chunks []int
	static *testStatic
	frame  int

	// finalized lists the static name seen by every Finalize, across frames
	finalized []string
}

// traceBuffer is the command buffer a traceContext produces.
type traceBuffer struct {
	worker int
	frame  int
	events []string
}

// traceExecutor records every callback into the worker's traceContext.
// Failure maps are read-only once the system is running.
type traceExecutor struct {
	failChunks   map[int]error
	panicChunks  map[int]bool
	failFinalize map[int]bool
	nilBuffer    map[int]bool

	// block, when set, holds chunk 0 until it is closed
	block chan struct{}

	// delay slows down the worker with the given id
	delayWorker int
	delay       time.Duration
}

func (e *traceExecutor) ExecuteSetup(dc *traceContext, static *testStatic, dynamic testDynamic) error {
	dc.events = dc.events[:0]
	dc.chunks = dc.chunks[:0]
	dc.static = static
	dc.frame = dynamic.frame
	dc.events = append(dc.events, "setup")
	return nil
}

func (e *traceExecutor) ExecuteChunk(dc *traceContext, chunk int) error {
	if chunk == 0 && e.block != nil {
		<-e.block
	}
	if e.delay > 0 && dc.id == e.delayWorker {
		time.Sleep(e.delay)
	}
	if e.panicChunks[chunk] {
		panic(fmt.Sprintf("chunk %d exploded", chunk))
	}
	if err := e.failChunks[chunk]; err != nil {
		return err
	}
	dc.events = append(dc.events, fmt.Sprintf("chunk:%d", chunk))
	dc.chunks = append(dc.chunks, chunk)
	return nil
}

func (e *traceExecutor) FinalizeContext(dc *traceContext) (CommandBuffer, error) {
	dc.events = append(dc.events, "finalize")
	if dc.static != nil {
		dc.finalized = append(dc.finalized, dc.static.name)
	}
	if e.failFinalize[dc.id] {
		return nil, errors.New("finalize failed")
	}
	if e.nilBuffer[dc.id] {
		return nil, nil
	}
	return &traceBuffer{
		worker: dc.id,
		frame:  dc.frame,
		events: append([]string(nil), dc.events...),
	}, nil
}

// recordingPrimary records the worker order of executed buffers.
type recordingPrimary struct {
	mu      sync.Mutex
	order   []int
	buffers []*traceBuffer
	fail    map[int]error
}

func (p *recordingPrimary) Execute(buf CommandBuffer) error {
	b := buf.(*traceBuffer)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, b.worker)
	p.buffers = append(p.buffers, b)
	return p.fail[b.worker]
}

func (p *recordingPrimary) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = nil
	p.buffers = nil
}

type testSystem = System[*traceContext, testStatic, testDynamic]

// newTestSystem creates a system over traceContexts and shuts it down when
// the test ends.
func newTestSystem(t *testing.T, exec *traceExecutor, opts ...Option) (*testSystem, []*traceContext) {
	t.Helper()

	var contexts []*traceContext
	factory := func(id int) (*traceContext, error) {
		dc := &traceContext{id: id}
		contexts = append(contexts, dc)
		return dc, nil
	}

	sys, err := NewSystem[*traceContext, testStatic, testDynamic](exec, factory, opts...)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})

	return sys, contexts
}

func expectedEvents(chunks ...int) []string {
	events := []string{"setup"}
	for _, c := range chunks {
		events = append(events, fmt.Sprintf("chunk:%d", c))
	}
	return append(events, "finalize")
}
