package shardqueue

import "time"

// Config groups the executor tunables. Zero values take the defaults below.
type Config struct {
	Shards         int
	QueueSize      int
	EnqueueTimeout time.Duration

	// ErrorHandler is called synchronously after a Job gives up with an error.
	ErrorHandler func(error)

	MaxAttempts int
	BaseBackoff time.Duration
	MaxInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 20 * time.Second
	}
	return c
}
