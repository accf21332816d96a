package progress

import (
	"sync"
	"sync/atomic"
)

// Bounded is a non-blocking bounded queue. When full, Push drops the new
// value and counts it.
type Bounded[T any] struct {
	ch      chan T
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewBounded creates a queue holding up to size values. size < 1 means 1.
func NewBounded[T any](size int) *Bounded[T] {
	if size < 1 {
		size = 1
	}
	return &Bounded[T]{ch: make(chan T, size)}
}

// Push enqueues v without blocking and reports whether it was kept. Values
// pushed after Close are dropped.
func (b *Bounded[T]) Push(v T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return false
	}
	select {
	case b.ch <- v:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// C returns the receive side. It is closed by Close.
func (b *Bounded[T]) C() <-chan T { return b.ch }

// Dropped returns how many values were discarded.
func (b *Bounded[T]) Dropped() int64 { return b.dropped.Load() }

// Close stops accepting values. Buffered values remain readable.
func (b *Bounded[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Channel is the event queue a run writes to and a host drains.
type Channel = Bounded[Event]

// NewChannel creates an event Channel with the given buffer.
func NewChannel(size int) *Channel { return NewBounded[Event](size) }

// Emit implements Sink.
func (b *Bounded[T]) Emit(v T) { b.Push(v) }
