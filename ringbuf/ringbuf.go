// Package ringbuf provides a bounded, thread-safe FIFO of playback
// frames. It decouples the prefetch producer from the playback consumer
// and suppresses duplicate frame indices when refilling after a seek.
package ringbuf

import (
	"container/list"
	"sync"

	"github.com/phagelab/go-playback/frame"
)

// Stats is a snapshot of buffer occupancy, used by the prefetcher for
// backpressure decisions.
type Stats struct {
	Filled   int
	Capacity int
}

// FrameRingBuffer is a fixed-capacity FIFO of (index, frame) pairs.
// The buffer owns enqueued frames until they are popped; popped frames
// belong to the caller. No index appears twice at the same time. Safe
// for concurrent use.
type FrameRingBuffer struct {
	mu       sync.Mutex
	queue    *list.List
	indices  map[int]struct{}
	capacity int
}

// New returns a FrameRingBuffer with the given capacity. Capacities
// below 1 are clamped to 1.
func New(capacity int) *FrameRingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameRingBuffer{
		queue:    list.New(),
		indices:  make(map[int]struct{}),
		capacity: capacity,
	}
}

// Capacity returns the fixed capacity set at construction.
func (b *FrameRingBuffer) Capacity() int {
	return b.capacity
}

// Reset clears all buffered frames and the index-membership set. Used
// when the playback position jumps discontinuously.
func (b *FrameRingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.Init()
	b.indices = make(map[int]struct{})
}

// PushBlock appends a contiguous block of frames starting at startIndex.
// Frames whose index is already buffered are skipped, and the append
// stops early once capacity is reached. Returns how many frames were
// actually added; a short count is the signal for the producer to back
// off, not an error.
func (b *FrameRingBuffer) PushBlock(startIndex int, frames []frame.Frame) int {
	if len(frames) == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	added := 0
	for offset, f := range frames {
		if b.queue.Len() >= b.capacity {
			break
		}
		idx := startIndex + offset
		if _, dup := b.indices[idx]; dup {
			continue
		}
		f.Index = idx
		b.queue.PushBack(f)
		b.indices[idx] = struct{}{}
		added++
	}
	return added
}

// Pop removes and returns the oldest buffered frame. The second result
// is false when the buffer is empty; the caller treats that as an
// underrun and retries after a delay.
func (b *FrameRingBuffer) Pop() (frame.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el := b.queue.Front()
	if el == nil {
		return frame.Frame{}, false
	}
	b.queue.Remove(el)
	f := el.Value.(frame.Frame)
	delete(b.indices, f.Index)
	return f, true
}

// Stats returns current occupancy and capacity as one atomic snapshot.
func (b *FrameRingBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Filled: b.queue.Len(), Capacity: b.capacity}
}
