package chunkdispatch

// semaphore is a counting, signal-only semaphore. Each release publishes
// one queue entry to the consumer; the channel operation is what orders
// the producer's slot write before the consumer's slot read.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(max int) *semaphore {
	return &semaphore{ch: make(chan struct{}, max)}
}

// release never blocks. It reports false when the count is already at
// its maximum, which only happens when the consumer has stopped draining.
func (s *semaphore) release() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *semaphore) acquire() {
	<-s.ch
}

// event is an auto-reset completion event: one set is consumed by one wait.
type event struct {
	ch chan struct{}
}

func newEvent() *event {
	return &event{ch: make(chan struct{}, 1)}
}

func (e *event) set() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// signaled returns the channel a waiter receives from. Receiving consumes
// the signal.
func (e *event) signaled() <-chan struct{} {
	return e.ch
}
