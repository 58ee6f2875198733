package chunkdispatch

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultQueueBytes is the per-worker queue budget used when none is set.
	DefaultQueueBytes = 16 * 1024

	// DefaultMaxWorkers caps the derived worker count.
	DefaultMaxWorkers = 32
)

// Config contains all configuration options for a System
type Config struct {
	// NumWorkers is the number of worker goroutines.
	// If 0, it is derived from the physical core count: one worker per
	// core minus one for the dispatching goroutine, at least one.
	NumWorkers int

	// MaxWorkers bounds NumWorkers: a derived count is capped at it and an
	// explicit count above it is rejected. Defaults to 32.
	MaxWorkers int

	// QueueBytes is the byte budget of each worker's queue. A frame needs
	// two entries per worker plus one per assigned chunk. Defaults to 16 KiB.
	QueueBytes int

	// FrameTimeout bounds how long DispatchFrame waits for workers.
	// Zero waits without a deadline.
	FrameTimeout time.Duration

	// StrictCallbacks turns a failing callback into a worker failure
	// instead of a logged, skipped entry. DispatchFrame then reports
	// ErrWorkerPanicked. Meant for debug builds and tests.
	StrictCallbacks bool

	// PinWorkerThreads locks each worker goroutine to its OS thread.
	// Graphics APIs with thread-affine deferred contexts need this.
	PinWorkerThreads bool

	// OnWorkerStart is called on the worker goroutine before it waits for work
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on the worker goroutine after it leaves its loop
	OnWorkerStop func(workerID int)

	// CoreCounter reports the number of physical cores. Defaults to PhysicalCores.
	CoreCounter func() int

	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger *zap.SugaredLogger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		NumWorkers:  0, // derived from CoreCounter
		MaxWorkers:  DefaultMaxWorkers,
		QueueBytes:  DefaultQueueBytes,
		CoreCounter: PhysicalCores,
		Logger:      zap.NewNop().Sugar(),
	}
}

// validate checks the configuration and returns an error if invalid
func (c *Config) validate() error {
	if c.NumWorkers < 0 {
		return errInvalidConfig("NumWorkers must be >= 0")
	}

	if c.MaxWorkers <= 0 {
		return errInvalidConfig("MaxWorkers must be > 0")
	}

	if c.NumWorkers > c.MaxWorkers {
		return errInvalidConfig("NumWorkers must be <= MaxWorkers")
	}

	if c.QueueBytes <= 0 {
		return errInvalidConfig("QueueBytes must be > 0")
	}

	if c.FrameTimeout < 0 {
		return errInvalidConfig("FrameTimeout must be >= 0")
	}

	if c.CoreCounter == nil {
		return errInvalidConfig("CoreCounter must not be nil")
	}

	if c.Logger == nil {
		return errInvalidConfig("Logger must not be nil")
	}

	return nil
}

// workerCount resolves the number of workers to start.
func (c *Config) workerCount() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}

	n := c.CoreCounter() - 1
	if n < 1 {
		n = 1
	}
	if n > c.MaxWorkers {
		n = c.MaxWorkers
	}
	return n
}
