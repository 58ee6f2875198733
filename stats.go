package chunkdispatch

import "time"

// Stats contains statistics about dispatch since the System was created.
// Counters are read without locks, so a snapshot taken while a frame is in
// progress may be slightly inconsistent.
//
// Example:
//
//	stats := sys.Stats()
//	fmt.Printf("frames: %d, avg: %v, max: %v\n",
//	    stats.Frames, stats.FrameAvg, stats.FrameMax)
type Stats struct {
	// Frames is the number of frames that completed and were submitted.
	Frames uint64

	// ChunksDispatched is the total number of chunks of completed frames.
	ChunksDispatched uint64

	// CallbackFailures counts executor callbacks that returned an error or
	// panicked. Each one skipped a Setup, Chunk or Finalize entry.
	CallbackFailures uint64

	// SubmitFailures counts command buffers the primary context rejected.
	SubmitFailures uint64

	// BuffersSubmitted counts command buffers executed on the primary context.
	BuffersSubmitted uint64

	// Timeouts counts frames abandoned because of FrameTimeout.
	Timeouts uint64

	// LastFrame, FrameAvg and FrameMax measure DispatchFrame from the
	// first push to the last submission. Zero until a frame completes.
	LastFrame time.Duration
	FrameAvg  time.Duration
	FrameMax  time.Duration

	// NumWorkers is fixed at creation.
	NumWorkers int

	// WorkerStats has one entry per worker, in worker order.
	WorkerStats []WorkerStats
}

// WorkerStats contains statistics for an individual worker.
type WorkerStats struct {
	// WorkerID is the worker's index, which is also its submission order.
	WorkerID int

	// Frames is the number of frames this worker has finalized.
	Frames uint64

	// ChunksExecuted counts chunks whose callback succeeded.
	ChunksExecuted uint64

	// Failures counts this worker's failed callbacks.
	Failures uint64

	// QueueCapacity is the number of entries the worker's queue holds.
	QueueCapacity int

	// QueueHighWater is the largest number of entries queued in one frame.
	QueueHighWater int

	// State is the worker's current state: IDLE, SETUP, CHUNK,
	// FINALIZING or STOPPED.
	State string
}

// Stats returns a snapshot of system and per-worker statistics.
func (s *System[C, S, D]) Stats() Stats {
	frames := s.metrics.frames.Load()

	var avg time.Duration
	if frames > 0 {
		avg = time.Duration(s.metrics.frameSum.Load() / int64(frames))
	}

	workerStats := make([]WorkerStats, len(s.workers))
	for i, w := range s.workers {
		workerStats[i] = WorkerStats{
			WorkerID:       i,
			Frames:         w.frames.Load(),
			ChunksExecuted: w.chunksExecuted.Load(),
			Failures:       w.failures.Load(),
			QueueCapacity:  w.queue.capacity(),
			QueueHighWater: int(w.queue.highWater.Load()),
			State:          w.getState().String(),
		}
	}

	return Stats{
		Frames:           frames,
		ChunksDispatched: s.metrics.chunks.Load(),
		CallbackFailures: s.metrics.callbackFailures.Load(),
		SubmitFailures:   s.metrics.submitFailures.Load(),
		BuffersSubmitted: s.metrics.buffersSubmitted.Load(),
		Timeouts:         s.metrics.timeouts.Load(),
		LastFrame:        time.Duration(s.metrics.frameLast.Load()),
		FrameAvg:         avg,
		FrameMax:         time.Duration(s.metrics.frameMax.Load()),
		NumWorkers:       len(s.workers),
		WorkerStats:      workerStats,
	}
}
