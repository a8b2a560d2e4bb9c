package trace

import (
	"runtime"
)

// EventKind discriminates the trace event variants.
type EventKind uint8

const (
	KindFunctionEnter EventKind = iota
	KindFunctionExit
	KindSyscall
)

func (k EventKind) String() string {
	switch k {
	case KindFunctionEnter:
		return "function_enter"
	case KindFunctionExit:
		return "function_exit"
	case KindSyscall:
		return "syscall"
	}
	return "unknown"
}

// SizeClass is the storage width of a captured value.
type SizeClass uint8

const (
	SizeZero SizeClass = iota
	Size8
	Size16
	Size32
	Size64
	SizeVariable
)

// TypedValue pairs a type descriptor with a serialized value. It preserves
// the rich type information the instrumented front-end has at the call site,
// which a generic external tracer cannot recover.
type TypedValue struct {
	Type string
	Size SizeClass
	Data string
}

// SourceLocation is attached at event-creation time and never recomputed.
// Line and Col are 1-based.
type SourceLocation struct {
	File string
	Line int
	Col  int
}

// Here captures the caller's source location, for instrumentation sites
// that have no front-end-provided location.
func Here() SourceLocation {
	_, file, line, _ := runtime.Caller(1)
	return SourceLocation{File: file, Line: line, Col: 1}
}

// Event is the trace record written on every instrumented boundary.
// It is a tagged variant kept as a flat struct so that the producer path
// never allocates beyond the pre-reserved buffer slot.
//
// Events are immutable once created: capture components create them,
// exactly one downstream stage consumes them.
type Event struct {
	Kind EventKind

	// Function enter/exit fields.
	Name       string
	Args       []TypedValue
	Ret        TypedValue
	Loc        SourceLocation
	DurationNs uint64

	// Syscall fields.
	SyscallNr    uint32
	SyscallEnter bool

	PID         uint32
	TID         uint32
	TimestampNs uint64
}
