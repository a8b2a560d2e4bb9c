package report

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WriteText renders the report one line per event:
//
//	[ts] -> name(args) <file:line:col>
//	[ts] <- name() = value [Nms]
//	[ts] >> syscall(nr) tid=T
//	[ts] << syscall(nr) tid=T
func (r *TraceReport) WriteText(w io.Writer) error {
	for _, record := range r.Events {
		var err error
		switch record.Type {
		case "function_enter":
			_, err = fmt.Fprintf(w, "[%d] -> %s(%s) <%s:%d:%d>\n",
				record.TimestampNs, record.Name, formatArgs(record.Args),
				record.File, record.Line, record.Col,
			)
		case "function_exit":
			ret := ""
			if record.Return != nil {
				ret = record.Return.Value
			}
			_, err = fmt.Fprintf(w, "[%d] <- %s() = %s [%dms]\n",
				record.TimestampNs, record.Name, ret,
				record.DurationNs/1e6,
			)
		case "syscall":
			arrow := "<<"
			if record.Phase == "enter" {
				arrow = ">>"
			}
			var nr uint32
			if record.SyscallNr != nil {
				nr = *record.SyscallNr
			}
			_, err = fmt.Fprintf(w, "[%d] %s syscall(%d) tid=%d\n",
				record.TimestampNs, arrow, nr, record.Tid,
			)
		default:
			_, err = fmt.Fprintf(w, "[%d] ?? %s\n", record.TimestampNs, record.Type)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func formatArgs(args []Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprintf("%s: %s", arg.Type, arg.Value))
	}

	return strings.Join(parts, ", ")
}

// sanitizeValue guards the formatters against malformed serialized values:
// anything not cleanly printable is rendered as a quoted literal instead of
// aborting report generation.
func sanitizeValue(s string) string {
	if utf8.ValidString(s) && isPrintable(s) {
		return s
	}

	return fmt.Sprintf("%q", s)
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
