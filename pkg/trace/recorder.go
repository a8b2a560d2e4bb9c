package trace

import (
	"time"
)

// Recorder is the instrumentation strategy selected once at startup.
// The enabled strategy writes into per-thread buffers; the disabled one is
// a zero-size type with empty methods, so a disabled build pays nothing
// beyond the devirtualized call.
type Recorder interface {
	// RecordEnter records a function-enter boundary with its typed
	// arguments and call-site location. It never blocks and never
	// allocates beyond the pre-reserved buffer slot.
	RecordEnter(name string, loc SourceLocation, args ...TypedValue)

	// RecordExit records the matching function-exit boundary with the
	// typed return value and the elapsed duration measured by the caller.
	RecordExit(name string, ret TypedValue, elapsed time.Duration)

	// RecordSyscall records a syscall boundary observed in-process.
	RecordSyscall(nr uint32, enter bool)

	// Enabled reports whether events are being captured.
	Enabled() bool

	// Drain collects everything recorded so far, merged by timestamp,
	// together with the total dropped-event count. It is meant to run
	// once, after the instrumented threads have quiesced.
	Drain() ([]Event, uint64)
}

type RecorderOptions struct {
	enabled  bool
	capacity int
}

type RecorderOption func(*RecorderOptions)

func WithRecorderEnabled(enabled bool) RecorderOption {
	return func(o *RecorderOptions) {
		o.enabled = enabled
	}
}

func WithRecorderBufferCapacity(capacity int) RecorderOption {
	return func(o *RecorderOptions) {
		o.capacity = capacity
	}
}

// NewRecorder selects the recording strategy. The enabled flag is meant to
// be resolved once at process start (for example from the XTRACE_TRACE
// environment variable) and passed down, not consulted repeatedly.
func NewRecorder(opts ...RecorderOption) Recorder {
	o := &RecorderOptions{
		capacity: DefaultBufferCapacity,
	}
	for _, f := range opts {
		f(o)
	}
	if !o.enabled {
		return nopRecorder{}
	}

	return &recorder{
		registry: NewRegistry(o.capacity),
	}
}

type recorder struct {
	registry *Registry
}

func (r *recorder) RecordEnter(name string, loc SourceLocation, args ...TypedValue) {
	r.registry.Put(Event{
		Kind:        KindFunctionEnter,
		Name:        name,
		Args:        args,
		Loc:         loc,
		TID:         Gettid(),
		TimestampNs: Now(),
	})
}

func (r *recorder) RecordExit(name string, ret TypedValue, elapsed time.Duration) {
	r.registry.Put(Event{
		Kind:        KindFunctionExit,
		Name:        name,
		Ret:         ret,
		DurationNs:  uint64(elapsed.Nanoseconds()),
		TID:         Gettid(),
		TimestampNs: Now(),
	})
}

func (r *recorder) RecordSyscall(nr uint32, enter bool) {
	r.registry.Put(Event{
		Kind:         KindSyscall,
		SyscallNr:    nr,
		SyscallEnter: enter,
		TID:          Gettid(),
		TimestampNs:  Now(),
	})
}

func (r *recorder) Enabled() bool {
	return true
}

func (r *recorder) Drain() ([]Event, uint64) {
	return r.registry.DrainAll()
}

// nopRecorder is the disabled strategy. Its methods are empty so the
// instrumentation sites reduce to no-ops.
type nopRecorder struct{}

func (nopRecorder) RecordEnter(string, SourceLocation, ...TypedValue) {}

func (nopRecorder) RecordExit(string, TypedValue, time.Duration) {}

func (nopRecorder) RecordSyscall(uint32, bool) {}

func (nopRecorder) Enabled() bool { return false }

func (nopRecorder) Drain() ([]Event, uint64) { return nil, 0 }
