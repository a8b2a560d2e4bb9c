package syscalls

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xtrace/pkg/trace"
)

func TestEventWireSizeFrozen(t *testing.T) {
	// The layout is an ABI contract with the kernel probe.
	require.Equal(t, EventWireSize, binary.Size(Event{}))
}

func TestDecodeEvent(t *testing.T) {
	src := Event{
		Pid:         1234,
		Tid:         1236,
		Nr:          257, // openat on x86_64
		TimestampNs: 987654321,
		Enter:       1,
	}
	data := new(bytes.Buffer)
	require.NoError(t, binary.Write(data, binary.LittleEndian, src))
	require.Len(t, data.Bytes(), EventWireSize)

	evt, err := decodeEvent(data.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(1234), evt.Pid)
	require.Equal(t, uint32(1236), evt.Tid)
	require.Equal(t, uint32(257), evt.Nr)
	require.Equal(t, uint64(987654321), evt.TimestampNs)
	require.Equal(t, uint8(1), evt.Enter)
}

func TestDecodeEventTruncated(t *testing.T) {
	_, err := decodeEvent([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestEventToTraceEvent(t *testing.T) {
	evt := Event{Pid: 7, Tid: 9, Nr: 3, TimestampNs: 42, Enter: 0}

	te := evt.TraceEvent()
	require.Equal(t, trace.KindSyscall, te.Kind)
	require.Equal(t, uint32(3), te.SyscallNr)
	require.False(t, te.SyscallEnter)
	require.Equal(t, uint32(7), te.PID)
	require.Equal(t, uint32(9), te.TID)
	require.Equal(t, uint64(42), te.TimestampNs)
}

func TestReadEventsFiltersByPID(t *testing.T) {
	tracer := NewTracer(WithTracerPID(10))
	tracer.eventsCh = make(chan []byte, 8)

	for _, pid := range []uint32{10, 11, 10} {
		data := new(bytes.Buffer)
		require.NoError(t, binary.Write(data, binary.LittleEndian, Event{Pid: pid, Enter: 1}))
		tracer.eventsCh <- data.Bytes()
	}

	events := tracer.ReadEvents()
	require.Len(t, events, 2)
	for _, evt := range events {
		require.Equal(t, uint32(10), evt.Pid)
	}
}

func TestReadEventsKeepsAllThreadsOfFilteredProcess(t *testing.T) {
	// The pid filter matches the thread-group id, so syscalls made by
	// child threads of the target process must survive it.
	tracer := NewTracer(WithTracerPID(10))
	tracer.eventsCh = make(chan []byte, 8)

	for _, evt := range []Event{
		{Pid: 10, Tid: 10, Enter: 1}, // main thread
		{Pid: 10, Tid: 11, Enter: 1}, // child thread
		{Pid: 10, Tid: 12, Enter: 1}, // child thread
		{Pid: 20, Tid: 20, Enter: 1}, // other process
	} {
		data := new(bytes.Buffer)
		require.NoError(t, binary.Write(data, binary.LittleEndian, evt))
		tracer.eventsCh <- data.Bytes()
	}

	events := tracer.ReadEvents()
	require.Len(t, events, 3)

	tids := make([]uint32, 0, len(events))
	for _, evt := range events {
		require.Equal(t, uint32(10), evt.Pid)
		tids = append(tids, evt.Tid)
	}
	require.ElementsMatch(t, []uint32{10, 11, 12}, tids)
}

func TestReadEventsNonBlocking(t *testing.T) {
	tracer := NewTracer()
	tracer.eventsCh = make(chan []byte, 1)

	// Empty buffer returns immediately with nothing.
	require.Empty(t, tracer.ReadEvents())
}

func TestDetachIdempotent(t *testing.T) {
	tracer := NewTracer()

	// Never attached: still a no-op, not an error.
	tracer.Detach()
	tracer.Detach()
	require.False(t, tracer.attached)
}

func TestOpenCloseScenario(t *testing.T) {
	// A process making 3 open-class and 3 matching close-class syscalls
	// must surface 6 enter-phase and 6 exit-phase records.
	tracer := NewTracer()
	tracer.eventsCh = make(chan []byte, 16)

	put := func(nr uint32, enter uint8) {
		data := new(bytes.Buffer)
		require.NoError(t, binary.Write(data, binary.LittleEndian, Event{
			Pid: 1, Nr: nr, TimestampNs: 1, Enter: enter,
		}))
		tracer.eventsCh <- data.Bytes()
	}

	const openatNr, closeNr = 257, 3
	for i := 0; i < 3; i++ {
		put(openatNr, 1)
		put(openatNr, 0)
		put(closeNr, 1)
		put(closeNr, 0)
	}

	events := tracer.ReadEvents()
	require.Len(t, events, 12)

	var enters, exits int
	for _, evt := range events {
		if evt.Enter == 1 {
			enters++
		} else {
			exits++
		}
	}
	require.Equal(t, 6, enters)
	require.Equal(t, 6, exits)
}
