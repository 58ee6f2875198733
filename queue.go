package chunkdispatch

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// workQueue is a bounded single-producer/single-consumer queue of work
// items with a fixed byte budget. The dispatcher is the only producer and
// the owning worker the only consumer.
//
// Cursors are plain integers. The producer writes a slot and then releases
// avail; the consumer acquires avail before reading, so the channel
// operation inside the semaphore orders the two.
//
// Both cursors are rewound once per frame and never wrap: a frame that does
// not fit is rejected instead of overwriting unread entries.
type workQueue[S, D any] struct {
	_ cpu.CacheLinePad

	// write is owned by the producer
	write int

	_ cpu.CacheLinePad

	// read is owned by the consumer
	read int

	_ cpu.CacheLinePad

	slots     []WorkItem[S, D]
	entrySize int
	highWater atomic.Int64
	avail     *semaphore
}

// entrySize returns the number of bytes one queued item occupies.
func entrySize[S, D any]() int {
	return int(unsafe.Sizeof(WorkItem[S, D]{}))
}

// newWorkQueue creates a queue holding as many entries as fit into
// capacityBytes.
func newWorkQueue[S, D any](capacityBytes int) *workQueue[S, D] {
	size := entrySize[S, D]()
	n := capacityBytes / size
	return &workQueue[S, D]{
		slots:     make([]WorkItem[S, D], n),
		entrySize: size,
		avail:     newSemaphore(n),
	}
}

// push appends an item and releases the semaphore once. Producer only.
func (q *workQueue[S, D]) push(item WorkItem[S, D]) error {
	if q.write >= len(q.slots) {
		return ErrQueueFull
	}

	q.slots[q.write] = item
	q.write++

	if hw := int64(q.write); hw > q.highWater.Load() {
		q.highWater.Store(hw)
	}

	if !q.avail.release() {
		return ErrQueueFull
	}
	return nil
}

// pop returns the next item. Consumer only, and only after a successful
// acquire on avail, which guarantees the slot has been written.
func (q *workQueue[S, D]) pop() WorkItem[S, D] {
	item := q.slots[q.read]
	// drop the borrowed static reference as soon as it has been consumed
	q.slots[q.read] = WorkItem[S, D]{}
	q.read++
	return item
}

// wait blocks until an entry is available and returns it.
func (q *workQueue[S, D]) wait() WorkItem[S, D] {
	q.avail.acquire()
	return q.pop()
}

// reset rewinds the write cursor for a new frame. Producer only, and only
// once the consumer has finished the previous frame.
func (q *workQueue[S, D]) reset() {
	q.write = 0
}

// rewind rewinds the read cursor after a frame. Consumer only.
func (q *workQueue[S, D]) rewind() {
	q.read = 0
}

// capacity returns the number of entries the queue can hold per frame.
func (q *workQueue[S, D]) capacity() int {
	return len(q.slots)
}

// maxChunks returns how many chunk entries fit next to one Setup and one
// Finalize entry.
func (q *workQueue[S, D]) maxChunks() int {
	return len(q.slots) - 2
}
