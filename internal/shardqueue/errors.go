package shardqueue

import (
	"errors"
	"fmt"
)

var (
	ErrExecutorClosed = errors.New("shardqueue: executor closed")
	ErrQueueFull      = errors.New("shardqueue: queue full")
)

// QueueFullError reports which shard rejected a job.
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("shardqueue: shard %d full (%d/%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }
