package trace

import (
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/maxgio92/xtrace/internal/utils"
)

// Registry maps an OS thread id to its trace buffer. It is an explicit
// registry rather than language-level thread-local storage: lookups happen
// per call, so goroutine migration across threads is tolerated.
type Registry struct {
	buffers  sync.Map
	capacity int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
	}
}

// buffer returns the calling thread's buffer, creating it on first use.
func (r *Registry) buffer(tid uint32) *Buffer {
	if buf, ok := r.buffers.Load(tid); ok {
		return buf.(*Buffer)
	}
	buf, _ := r.buffers.LoadOrStore(tid, NewBuffer(r.capacity))

	return buf.(*Buffer)
}

// Put records one event into the buffer of the thread it carries.
func (r *Registry) Put(evt Event) {
	r.buffer(evt.TID).Put(evt)
}

// DrainAll drains every thread buffer and merges the events by timestamp.
// The sort is stable so per-thread program order is preserved among equal
// timestamps. It returns the merged events and the total dropped count.
//
// DrainAll must not race with further writes: it is meant to run once,
// after the traced threads have quiesced or signaled a flush point.
func (r *Registry) DrainAll() ([]Event, uint64) {
	var events []Event
	var dropped uint64

	r.buffers.Range(func(_, v interface{}) bool {
		buf := v.(*Buffer)
		events = append(events, buf.Drain()...)
		dropped += buf.Dropped()
		return true
	})

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampNs < events[j].TimestampNs
	})

	return events, dropped
}

// Threads returns how many thread buffers have been registered.
func (r *Registry) Threads() int {
	return utils.LenSyncMap(&r.buffers)
}

// Now returns a CLOCK_MONOTONIC timestamp in nanoseconds. The kernel-side
// capture paths stamp with bpf_ktime_get_ns, which shares the same clock
// base, so cross-stream merge by timestamp stays meaningful.
func Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}

// Gettid returns the OS thread id of the calling thread.
func Gettid() uint32 {
	return uint32(unix.Gettid())
}
