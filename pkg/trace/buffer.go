package trace

import (
	"sync/atomic"
)

const DefaultBufferCapacity = 8192

// Buffer is a fixed-capacity overwrite ring owned by one thread for writes.
// A drain step reads it only after the owner has quiesced, which is what
// keeps the producer path lock-free.
//
// Slots are claimed with a single atomic reservation so that a goroutine
// preempted mid-write and rescheduled on another thread cannot corrupt the
// ring accounting. Put never blocks: once the ring is full the oldest
// unread event is overwritten and the dropped counter grows.
type Buffer struct {
	events  []Event
	next    atomic.Uint64
	dropped atomic.Uint64
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		events: make([]Event, capacity),
	}
}

// Put appends one event, overwriting the oldest entry when full.
func (b *Buffer) Put(evt Event) {
	i := b.next.Add(1) - 1
	b.events[i%uint64(len(b.events))] = evt
	if i >= uint64(len(b.events)) {
		b.dropped.Add(1)
	}
}

// Drain returns the surviving events in insertion order and resets the
// buffer. It must only run after the owning thread has quiesced or
// signaled a flush point.
func (b *Buffer) Drain() []Event {
	total := b.next.Load()
	count := total
	if count > uint64(len(b.events)) {
		count = uint64(len(b.events))
	}
	start := total - count

	out := make([]Event, 0, count)
	for i := start; i < total; i++ {
		out = append(out, b.events[i%uint64(len(b.events))])
	}
	b.next.Store(0)

	return out
}

// Dropped returns how many events were overwritten on overflow.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Len returns the number of events currently readable.
func (b *Buffer) Len() int {
	n := b.next.Load()
	if n > uint64(len(b.events)) {
		n = uint64(len(b.events))
	}
	return int(n)
}
