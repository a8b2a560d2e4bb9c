package report

import (
	"encoding/json"
	"io"

	"github.com/maxgio92/xtrace/internal/settings"
	"github.com/maxgio92/xtrace/pkg/trace"
)

// TraceReport is the machine-readable rendering of a merged, time-ordered
// event sequence. Both writers are pure functions of the events: the same
// input always yields byte-identical output.
type TraceReport struct {
	Metadata Metadata `json:"metadata"`
	Events   []Record `json:"events"`
	Stats    Stats    `json:"stats"`
}

type Metadata struct {
	Program     string `json:"program"`
	ToolVersion string `json:"tool_version"`
}

type Stats struct {
	TotalEvents   int    `json:"total_events"`
	DroppedEvents uint64 `json:"dropped_events"`
	DurationNs    uint64 `json:"duration_ns"`
}

// Record is one serialized event. Type is one of function_enter,
// function_exit, syscall.
type Record struct {
	Type        string  `json:"type"`
	Name        string  `json:"name,omitempty"`
	Args        []Value `json:"args,omitempty"`
	Return      *Value  `json:"return,omitempty"`
	File        string  `json:"file,omitempty"`
	Line        int     `json:"line,omitempty"`
	Col         int     `json:"col,omitempty"`
	DurationNs  uint64  `json:"duration_ns,omitempty"`
	SyscallNr   *uint32 `json:"syscall_nr,omitempty"`
	Phase       string  `json:"phase,omitempty"`
	Pid         uint32  `json:"pid,omitempty"`
	Tid         uint32  `json:"tid"`
	TimestampNs uint64  `json:"timestamp_ns"`
}

type Value struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type TraceReportOption func(*TraceReport)

func NewTraceReport(opts ...TraceReportOption) *TraceReport {
	report := &TraceReport{
		Metadata: Metadata{
			Program:     settings.CmdName,
			ToolVersion: settings.Version,
		},
	}
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportProgram(program string) TraceReportOption {
	return func(o *TraceReport) {
		o.Metadata.Program = program
	}
}

func WithReportToolVersion(version string) TraceReportOption {
	return func(o *TraceReport) {
		o.Metadata.ToolVersion = version
	}
}

// WithReportEvents serializes the merged event sequence and fills the
// statistics section from it.
func WithReportEvents(events []trace.Event) TraceReportOption {
	return func(o *TraceReport) {
		o.Events = make([]Record, 0, len(events))
		for _, evt := range events {
			o.Events = append(o.Events, newRecord(evt))
		}
		o.Stats.TotalEvents = len(events)
		if len(events) > 0 {
			o.Stats.DurationNs = events[len(events)-1].TimestampNs - events[0].TimestampNs
		}
	}
}

// WithReportDropped surfaces the overwrite-on-overflow count so consumers
// know completeness was sacrificed for bounded memory.
func WithReportDropped(dropped uint64) TraceReportOption {
	return func(o *TraceReport) {
		o.Stats.DroppedEvents = dropped
	}
}

func newRecord(evt trace.Event) Record {
	record := Record{
		Type:        evt.Kind.String(),
		Pid:         evt.PID,
		Tid:         evt.TID,
		TimestampNs: evt.TimestampNs,
	}

	switch evt.Kind {
	case trace.KindFunctionEnter:
		record.Name = evt.Name
		record.File = evt.Loc.File
		record.Line = evt.Loc.Line
		record.Col = evt.Loc.Col
		for _, arg := range evt.Args {
			record.Args = append(record.Args, Value{
				Type:  arg.Type,
				Value: sanitizeValue(arg.Data),
			})
		}
	case trace.KindFunctionExit:
		record.Name = evt.Name
		record.DurationNs = evt.DurationNs
		record.Return = &Value{
			Type:  evt.Ret.Type,
			Value: sanitizeValue(evt.Ret.Data),
		}
	case trace.KindSyscall:
		nr := evt.SyscallNr
		record.SyscallNr = &nr
		record.Phase = "exit"
		if evt.SyscallEnter {
			record.Phase = "enter"
		}
	}

	return record
}

// WriteJSON renders the report as a single JSON document.
func (r *TraceReport) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
