package trace

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/xtrace/internal/output"
	"github.com/maxgio92/xtrace/internal/settings"
	"github.com/maxgio92/xtrace/pkg/cmd/options"
	"github.com/maxgio92/xtrace/pkg/probe"
	"github.com/maxgio92/xtrace/pkg/report"
	"github.com/maxgio92/xtrace/pkg/syscalls"
	"github.com/maxgio92/xtrace/pkg/trace"
)

const (
	CmdName = "trace"

	outputFormatJSON = "json"
	outputFormatText = "text"

	pollInterval = 100 * time.Millisecond
)

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Trace kernel syscall boundary events",
		Long: fmt.Sprintf(`
%s attaches a kernel probe to the syscall entry and exit tracepoints and
streams fixed-size boundary records through a kernel ring buffer. The merged,
time-ordered event sequence is rendered as a JSON or text report on stdout.

Installing the probe requires root or CAP_BPF and CAP_PERFMON.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().IntVar(&o.pid, "pid", -1, "Filter events by process id")
	cmd.Flags().IntVar(&o.duration, "duration", 0, "Capture duration in seconds (0 runs until interrupted)")
	cmd.Flags().StringVarP(&o.outputFormat, "output", "o", outputFormatJSON, "Output format (json, text)")
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status of the capture")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	if o.outputFormat != outputFormatJSON && o.outputFormat != outputFormatText {
		return errors.Errorf("unsupported output format: %s", o.outputFormat)
	}

	// Optional self-instrumentation, toggled process-wide by XTRACE_TRACE.
	recorder := trace.NewRecorder(trace.WithRecorderEnabled(o.TraceEnabled))

	tracer := syscalls.NewTracer(
		syscalls.WithTracerProbeObjBuf(o.Probe),
		syscalls.WithTracerProbeObjName(o.ProbeObjName),
		syscalls.WithTracerPID(o.pid),
		syscalls.WithTracerLogger(o.Logger),
	)
	if err := tracer.Attach(o.Ctx); err != nil {
		if errors.Is(err, probe.ErrPermissionDenied) {
			o.Logger.Error().Msg("installing kernel probes requires root, or CAP_BPF and CAP_PERFMON")
		}
		return errors.Wrap(err, "failed to attach syscall tracer")
	}
	defer tracer.Detach()

	events, dropped := o.collect(tracer, recorder)

	r := report.NewTraceReport(
		report.WithReportProgram(settings.CmdName),
		report.WithReportToolVersion(settings.Version),
		report.WithReportEvents(events),
		report.WithReportDropped(dropped),
	)
	if o.outputFormat == outputFormatText {
		return r.WriteText(os.Stdout)
	}

	return r.WriteJSON(os.Stdout)
}

// collect polls the kernel ring buffer until the duration elapses or the
// context is canceled, then merges syscall and self-instrumentation events
// by timestamp.
func (o *Options) collect(tracer *syscalls.Tracer, recorder trace.Recorder) ([]trace.Event, uint64) {
	recorder.RecordEnter("collect", trace.Here())
	start := time.Now()

	ctx := o.Ctx
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(o.Ctx, time.Duration(o.duration)*time.Second)
		defer cancel()
	}

	var events []trace.Event
	var consumed atomic.Uint64

	g, ctx := errgroup.WithContext(ctx)
	if o.status {
		g.Go(func() error {
			output.StatusBar(ctx, time.Second, func() {
				output.PrintRight(output.PrettyCaptureStatus(
					consumed.Swap(0),
					tracer.BufUtilization(),
					0,
				))
			})
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				for _, evt := range tracer.ReadEvents() {
					events = append(events, evt.TraceEvent())
				}
				return nil
			case <-ticker.C:
				batch := tracer.ReadEvents()
				consumed.Add(uint64(len(batch)))
				for _, evt := range batch {
					events = append(events, evt.TraceEvent())
				}
			}
		}
	})
	_ = g.Wait()

	recorder.RecordExit("collect", trace.TypedValue{Type: "unit", Size: trace.SizeZero}, time.Since(start))

	selfEvents, droppedSelf := recorder.Drain()
	events = append(events, selfEvents...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampNs < events[j].TimestampNs
	})

	return events, droppedSelf
}
