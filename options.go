package chunkdispatch

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a System.
type Option func(*Config)

// WithNumWorkers fixes the number of workers instead of deriving it from
// the core count.
func WithNumWorkers(n int) Option {
	return func(c *Config) {
		c.NumWorkers = n
	}
}

// WithMaxWorkers caps the derived worker count and bounds an explicit one.
func WithMaxWorkers(n int) Option {
	return func(c *Config) {
		c.MaxWorkers = n
	}
}

// WithQueueBytes sets the byte budget of each worker queue.
func WithQueueBytes(n int) Option {
	return func(c *Config) {
		c.QueueBytes = n
	}
}

// WithFrameTimeout bounds the wait for workers in DispatchFrame.
func WithFrameTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.FrameTimeout = d
	}
}

// WithStrictCallbacks makes callback failures fatal to the worker.
func WithStrictCallbacks(strict bool) Option {
	return func(c *Config) {
		c.StrictCallbacks = strict
	}
}

// WithPinWorkerThreads locks workers to OS threads.
func WithPinWorkerThreads(pin bool) Option {
	return func(c *Config) {
		c.PinWorkerThreads = pin
	}
}

// WithWorkerHooks installs worker start and stop callbacks.
func WithWorkerHooks(onStart, onStop func(workerID int)) Option {
	return func(c *Config) {
		c.OnWorkerStart = onStart
		c.OnWorkerStop = onStop
	}
}

// WithCoreCounter replaces the physical core query.
func WithCoreCounter(fn func() int) Option {
	return func(c *Config) {
		c.CoreCounter = fn
	}
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}
