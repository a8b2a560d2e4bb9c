package profile

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/xtrace/internal/output"
	"github.com/maxgio92/xtrace/pkg/cmd/options"
	"github.com/maxgio92/xtrace/pkg/flamegraph"
	"github.com/maxgio92/xtrace/pkg/hotspot"
	"github.com/maxgio92/xtrace/pkg/probe"
	"github.com/maxgio92/xtrace/pkg/profile"
	"github.com/maxgio92/xtrace/pkg/symtable"
)

const (
	CmdName = "profile"

	defaultDurationSeconds = 10
)

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Profile CPU usage with hardware cycle-counter sampling",
		Long: fmt.Sprintf(`
%s programs a hardware cycle counter to interrupt at a fixed frequency and
captures an instruction-pointer sample per interrupt. Samples are ranked as a
hotspot table, or folded into brendangregg flamegraph text with --stack.

Programming hardware counters requires root or CAP_PERFMON.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().IntVar(&o.pid, "pid", -1, "Profile a single process instead of the whole system")
	cmd.Flags().Uint64Var(&o.frequency, "frequency", profile.DefaultFrequencyHz, "Sampling frequency in Hz")
	cmd.Flags().IntVar(&o.duration, "duration", defaultDurationSeconds, "Profiling duration in seconds (0 runs until interrupted)")
	cmd.Flags().IntVar(&o.top, "top", 10, "Number of hotspot entries to report")
	cmd.Flags().BoolVar(&o.stack, "stack", false, "Capture call stacks and emit folded flamegraph text")
	cmd.Flags().BoolVar(&o.symbolize, "symbolize", false, "Resolve addresses against the target ELF symbol table (requires --pid)")
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status of the capture")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	if o.symbolize && o.pid <= 0 {
		return errors.New("--symbolize requires --pid")
	}

	profiler := profile.NewProfiler(
		profile.WithProfilerFrequency(o.frequency),
		profile.WithProfilerPID(o.pid),
		profile.WithProfilerProbeObjBuf(o.Probe),
		profile.WithProfilerProbeObjName(o.ProbeObjName),
		profile.WithProfilerLogger(o.Logger),
	)
	if err := profiler.Start(o.Ctx); err != nil {
		if errors.Is(err, probe.ErrPermissionDenied) {
			o.Logger.Error().Msg("programming hardware counters requires root, or CAP_PERFMON and CAP_BPF")
		}
		return errors.Wrap(err, "failed to start profiler")
	}
	defer profiler.Stop()

	samples := o.collect(profiler)
	profiler.Stop()

	o.Logger.Debug().Int("samples", len(samples)).Msg("collection finished")

	if o.stack {
		return o.writeFolded(os.Stdout, samples)
	}

	return hotspot.WriteTable(os.Stdout, hotspot.Analyze(samples, o.top))
}

// collect drains the sample ring buffer until the duration elapses or the
// context is canceled.
func (o *Options) collect(profiler *profile.Profiler) []profile.Sample {
	ctx := o.Ctx
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(o.Ctx, time.Duration(o.duration)*time.Second)
		defer cancel()
	}

	var samples []profile.Sample
	var collected atomic.Uint64

	g, ctx := errgroup.WithContext(ctx)
	if o.status {
		g.Go(func() error {
			output.StatusBar(ctx, time.Second, func() {
				output.PrintRight(output.PrettyCaptureStatus(
					collected.Swap(0),
					profiler.BufUtilization(),
					0,
				))
			})
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				samples = append(samples, profiler.CollectSamples()...)
				return nil
			case <-ticker.C:
				batch := profiler.CollectSamples()
				collected.Add(uint64(len(batch)))
				samples = append(samples, batch...)
			}
		}
	})
	_ = g.Wait()

	return samples
}

// writeFolded emits brendangregg folded stacks, optionally symbolized
// against the target process executable.
func (o *Options) writeFolded(w io.Writer, samples []profile.Sample) error {
	opts := make([]flamegraph.Option, 0, 1)
	if o.symbolize {
		formatter, err := o.symbolizer()
		if err != nil {
			o.Logger.Warn().Err(err).Msg("symbolication unavailable, falling back to raw addresses")
		} else {
			opts = append(opts, flamegraph.WithFrameFormatter(formatter))
		}
	}

	return flamegraph.FromSamples(samples, opts...).WriteFolded(w)
}

// symbolizer loads the target executable's ELF symbol table through
// /proc/<pid>/exe and resolves frames against it, with a hex fallback for
// addresses the table does not cover.
func (o *Options) symbolizer() (flamegraph.FrameFormatter, error) {
	tab := symtable.NewELFSymTab()
	if err := tab.Load(fmt.Sprintf("/proc/%d/exe", o.pid)); err != nil {
		return nil, err
	}

	return func(ip uint64) string {
		name, err := tab.GetName(ip)
		if err != nil || name == "" {
			return flamegraph.HexFrame(ip)
		}
		return name
	}, nil
}
