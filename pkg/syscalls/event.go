package syscalls

import (
	"github.com/maxgio92/xtrace/pkg/trace"
)

// Event is the fixed 32-byte record shared with the kernel probe. The
// layout is ABI-frozen between bpf/xtrace.bpf.c and this struct: byte
// offsets, sizes and little-endian byte order must never change without
// versioning both sides together.
//
// Pid is the thread-group id (the user-visible process id); Tid is the
// kernel task id of the thread that made the syscall.
//
//	offset 0  pid   u32
//	offset 4  tid   u32
//	offset 8  nr    u32
//	offset 12 pad   u32
//	offset 16 ts    u64
//	offset 24 enter u8
//	offset 25 pad   7 bytes
type Event struct {
	Pid         uint32
	Tid         uint32
	Nr          uint32
	_           uint32
	TimestampNs uint64
	Enter       uint8
	_           [7]byte
}

// EventWireSize is the frozen record size in bytes.
const EventWireSize = 32

// TraceEvent converts the wire record into the common trace event model for
// timestamp-ordered merging with function-trace events. The kernel probe
// stamps with bpf_ktime_get_ns, the same monotonic clock base the
// function-trace recorder uses.
func (e Event) TraceEvent() trace.Event {
	return trace.Event{
		Kind:         trace.KindSyscall,
		SyscallNr:    e.Nr,
		SyscallEnter: e.Enter != 0,
		PID:          e.Pid,
		TID:          e.Tid,
		TimestampNs:  e.TimestampNs,
	}
}
