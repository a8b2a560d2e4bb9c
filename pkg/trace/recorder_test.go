package trace_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xtrace/pkg/trace"
)

// traceFactorial instruments an n-level-deep recursion the way an
// instrumented front-end would: one enter and one exit per call frame.
func traceFactorial(rec trace.Recorder, n int) int {
	rec.RecordEnter("factorial",
		trace.SourceLocation{File: "fact.x", Line: 3, Col: 1},
		trace.TypedValue{Type: "int", Size: trace.Size64, Data: fmt.Sprintf("%d", n)},
	)
	start := time.Now()

	result := 1
	if n > 1 {
		result = n * traceFactorial(rec, n-1)
	}

	rec.RecordExit("factorial",
		trace.TypedValue{Type: "int", Size: trace.Size64, Data: fmt.Sprintf("%d", result)},
		time.Since(start),
	)

	return result
}

// reconstructDepth scans the drained sequence and returns the maximum
// enter/exit nesting depth.
func reconstructDepth(events []trace.Event) int {
	var depth, maxDepth int
	for _, evt := range events {
		switch evt.Kind {
		case trace.KindFunctionEnter:
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case trace.KindFunctionExit:
			depth--
		}
	}

	return maxDepth
}

func TestRecorderFactorialNesting(t *testing.T) {
	rec := trace.NewRecorder(trace.WithRecorderEnabled(true))

	require.Equal(t, 120, traceFactorial(rec, 5))

	events, dropped := rec.Drain()
	require.Zero(t, dropped)

	var enters, exits int
	for _, evt := range events {
		switch evt.Kind {
		case trace.KindFunctionEnter:
			enters++
		case trace.KindFunctionExit:
			exits++
		}
	}
	require.Equal(t, 5, enters)
	require.Equal(t, 5, exits)
	require.Equal(t, 5, reconstructDepth(events))
}

func TestRecorderWellNestedCalls(t *testing.T) {
	rec := trace.NewRecorder(trace.WithRecorderEnabled(true))

	var call func(depth, fanout int)
	call = func(depth, fanout int) {
		rec.RecordEnter("f", trace.SourceLocation{File: "f.x", Line: 1, Col: 1})
		start := time.Now()
		if depth > 1 {
			for i := 0; i < fanout; i++ {
				call(depth-1, fanout)
			}
		}
		rec.RecordExit("f", trace.TypedValue{Type: "unit", Size: trace.SizeZero}, time.Since(start))
	}
	call(3, 2)

	events, _ := rec.Drain()
	require.Equal(t, 3, reconstructDepth(events))

	// Every enter is eventually matched in program order.
	var depth int
	for _, evt := range events {
		if evt.Kind == trace.KindFunctionEnter {
			depth++
		} else {
			depth--
		}
		require.GreaterOrEqual(t, depth, 0)
	}
	require.Zero(t, depth)
}

func TestRecorderUnmatchedEnterTolerated(t *testing.T) {
	rec := trace.NewRecorder(trace.WithRecorderEnabled(true))

	// Abnormal termination: an enter with no matching exit.
	rec.RecordEnter("aborted", trace.SourceLocation{File: "a.x", Line: 1, Col: 1})

	events, dropped := rec.Drain()
	require.Len(t, events, 1)
	require.Zero(t, dropped)
	require.Equal(t, trace.KindFunctionEnter, events[0].Kind)
}

func TestRecorderDisabledRecordsNothing(t *testing.T) {
	rec := trace.NewRecorder()
	require.False(t, rec.Enabled())

	traceFactorial(rec, 5)
	rec.RecordSyscall(0, true)

	events, dropped := rec.Drain()
	require.Empty(t, events)
	require.Zero(t, dropped)
}

func TestRecorderEventStamping(t *testing.T) {
	rec := trace.NewRecorder(trace.WithRecorderEnabled(true))

	rec.RecordEnter("stamped", trace.SourceLocation{File: "s.x", Line: 2, Col: 5})
	rec.RecordExit("stamped", trace.TypedValue{Type: "int", Size: trace.Size32, Data: "7"}, 3*time.Millisecond)

	events, _ := rec.Drain()
	require.Len(t, events, 2)

	enter, exit := events[0], events[1]
	require.NotZero(t, enter.TID)
	require.NotZero(t, enter.TimestampNs)
	require.Equal(t, "s.x", enter.Loc.File)
	require.Equal(t, 2, enter.Loc.Line)
	require.Equal(t, 5, enter.Loc.Col)

	require.Equal(t, uint64(3*time.Millisecond), exit.DurationNs)
	require.GreaterOrEqual(t, exit.TimestampNs, enter.TimestampNs)
}

func TestRecorderOverflowSurfacedAsDropped(t *testing.T) {
	rec := trace.NewRecorder(
		trace.WithRecorderEnabled(true),
		trace.WithRecorderBufferCapacity(4),
	)

	for i := 0; i < 16; i++ {
		rec.RecordSyscall(uint32(i), true)
	}

	events, dropped := rec.Drain()
	require.Len(t, events, 4)
	require.Equal(t, uint64(12), dropped)
}

func TestRegistryMergesByTimestamp(t *testing.T) {
	reg := trace.NewRegistry(64)

	// Interleaved timestamps from two producers.
	reg.Put(trace.Event{TID: 1, TimestampNs: 10})
	reg.Put(trace.Event{TID: 2, TimestampNs: 5})
	reg.Put(trace.Event{TID: 1, TimestampNs: 20})
	reg.Put(trace.Event{TID: 2, TimestampNs: 15})

	require.Equal(t, 2, reg.Threads())

	events, dropped := reg.DrainAll()
	require.Zero(t, dropped)
	require.Len(t, events, 4)
	for i := 1; i < len(events); i++ {
		require.LessOrEqual(t, events[i-1].TimestampNs, events[i].TimestampNs)
	}
}

func TestRecorderParallelProducers(t *testing.T) {
	rec := trace.NewRecorder(trace.WithRecorderEnabled(true))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rec.RecordSyscall(uint32(i), i%2 == 0)
			}
		}()
	}
	wg.Wait()

	events, dropped := rec.Drain()
	require.Len(t, events, 800)
	require.Zero(t, dropped)
	for i := 1; i < len(events); i++ {
		require.LessOrEqual(t, events[i-1].TimestampNs, events[i].TimestampNs)
	}
}
