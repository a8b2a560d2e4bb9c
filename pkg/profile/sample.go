package profile

// Sample is one statistical profiling observation, created per counter
// interrupt and immutable after creation. Stack holds return addresses,
// innermost first.
type Sample struct {
	IP          uint64
	PID         uint32
	TID         uint32
	TimestampNs uint64
	Stack       []uint64
}

// sampleEvent is the fixed 32-byte record shared with the do_sample BPF
// program. Layout is ABI-frozen, little-endian:
//
//	offset 0  ip       u64
//	offset 8  ts       u64
//	offset 16 pid      u32
//	offset 20 tid      u32
//	offset 24 stack_id s32
//	offset 28 pad      u32
type sampleEvent struct {
	IP          uint64
	TimestampNs uint64
	Pid         uint32
	Tid         uint32
	StackID     int32
	_           [4]byte
}

const sampleEventWireSize = 32

// StackTrace is an array of instruction pointers as stored in the
// BPF_MAP_TYPE_STACK_TRACE map. 127 is the default PERF_MAX_STACK_DEPTH.
type StackTrace [127]uint64
