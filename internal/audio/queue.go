package audio

import (
	"context"
	"sync/atomic"
)

// FrameQueue is a bounded FIFO between the receive loop and playback.
// Push never blocks; when full the new frame is dropped.
type FrameQueue struct {
	ch      chan []byte
	dropped atomic.Uint64
}

func NewFrameQueue(size int) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{ch: make(chan []byte, size)}
}

// Push reports whether the frame was queued.
func (q *FrameQueue) Push(frame []byte) bool {
	select {
	case q.ch <- frame:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until a frame is available or ctx is done.
func (q *FrameQueue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case f := <-q.ch:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *FrameQueue) Len() int        { return len(q.ch) }
func (q *FrameQueue) Cap() int        { return cap(q.ch) }
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }
