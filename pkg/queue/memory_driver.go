package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

// ErrQueueFull is returned by the memory driver when its buffer is full.
var ErrQueueFull = errors.New("queue: memory buffer full")

// MemoryDriver is an in-process, channel-backed queue driver.
// Not durable across restarts.
type MemoryDriver struct {
	ch      chan []byte
	delayed atomic.Int64
}

// NewMemoryDriver creates an in-memory queue with a buffer of 1000 jobs.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{ch: make(chan []byte, 1000)}
}

func (d *MemoryDriver) Push(ctx context.Context, payload []byte) error {
	select {
	case d.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// PushDelayed holds payload on a timer and buffers it when delay has passed.
func (d *MemoryDriver) PushDelayed(_ context.Context, payload []byte, delay time.Duration) error {
	d.delayed.Add(1)
	time.AfterFunc(delay, func() {
		defer d.delayed.Add(-1)
		if err := d.Push(context.Background(), payload); err != nil {
			logger.Error("queue: delayed push failed", "error", err)
		}
	})
	return nil
}

func (d *MemoryDriver) Pop(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-d.ch:
		return payload, nil
	}
}

// Len is the number of buffered payloads plus those waiting on a delay.
func (d *MemoryDriver) Len() int { return len(d.ch) + int(d.delayed.Load()) }
