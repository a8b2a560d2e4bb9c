package profile

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"
	"sync"
	"unsafe"

	bpf "github.com/maxgio92/libbpfgo"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/xtrace/pkg/probe"
)

const (
	DefaultFrequencyHz = 1000

	ProgNameSample     = "do_sample"
	SamplesRingBufName = "samples"
	StackTracesMapName = "stack_traces"
)

// Profiler drives a hardware cycle counter programmed to interrupt at a
// fixed frequency. On each interrupt the kernel side captures instruction
// pointer, task ids, timestamp and call stack; the records land in a ring
// buffer drained by CollectSamples.
type Profiler struct {
	probe       *probe.Probe
	perfFDs     []int
	samplesCh   chan []byte
	stackTraces *bpf.BPFMap

	started bool
	mu      sync.Mutex

	*ProfilerOptions
}

func NewProfiler(opts ...ProfilerOption) *Profiler {
	profiler := &Profiler{
		ProfilerOptions: NewProfilerOptions(),
	}
	for _, opt := range opts {
		opt(profiler)
	}

	return profiler
}

// Start loads the sampling probe, opens one cycle-counter event per online
// CPU at the configured frequency and enables sampling. A process without
// permission to program hardware counters gets probe.ErrPermissionDenied,
// which is deliberately distinct from collecting zero samples.
func (p *Profiler) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	p.probe = probe.NewProbe(
		probe.WithObjBuf(p.probeObjBuf),
		probe.WithObjName(p.probeObjName),
		probe.WithLogger(p.logger),
	)
	if err := p.probe.Init(ctx); err != nil {
		return err
	}

	if err := p.openPerfEvents(); err != nil {
		p.closePerfEvents()
		p.probe.Close()
		return err
	}

	var err error
	p.samplesCh, err = p.probe.InitEventBuf(SamplesRingBufName)
	if err != nil {
		p.closePerfEvents()
		p.probe.Close()
		return err
	}
	p.probe.PollEventBuf()

	p.stackTraces, err = p.probe.Map(StackTracesMapName)
	if err != nil {
		p.closePerfEvents()
		p.probe.Close()
		return err
	}

	for _, fd := range p.perfFDs {
		if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
			p.logger.Warn().Err(err).Int("fd", fd).Msg("failed to enable perf event")
		}
	}

	p.started = true
	p.logger.Debug().Uint64("frequency_hz", p.frequency).Int("cpus", len(p.perfFDs)).Msg("sampler started")

	return nil
}

// openPerfEvents opens one counter per online CPU and attaches the BPF
// sampling program to each fd. Cycle counters are preferred; on machines
// without a PMU (typically VMs) it falls back to the software CPU clock.
func (p *Profiler) openPerfEvents() error {
	attr := &unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Config: unix.PERF_COUNT_HW_CPU_CYCLES,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample: p.frequency,
		Bits:   unix.PerfBitDisabled | unix.PerfBitFreq,
	}

	for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
		fd, err := unix.PerfEventOpen(attr, p.pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil && (errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EOPNOTSUPP)) {
			p.logger.Debug().Int("cpu", cpu).Msg("cycle counter unavailable, falling back to software cpu-clock")
			swAttr := *attr
			swAttr.Type = unix.PERF_TYPE_SOFTWARE
			swAttr.Config = unix.PERF_COUNT_SW_CPU_CLOCK
			fd, err = unix.PerfEventOpen(&swAttr, p.pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
		}
		if err != nil {
			if probe.IsPermission(err) {
				return errors.Wrapf(errors.WithMessage(probe.ErrPermissionDenied, err.Error()),
					"opening the cycle counter requires CAP_PERFMON or kernel.perf_event_paranoid <= 1 (cpu %d)", cpu)
			}
			return errors.Wrapf(err, "failed to open perf event on cpu %d", cpu)
		}
		p.perfFDs = append(p.perfFDs, fd)

		if err := p.probe.AttachPerfEvent(ProgNameSample, fd); err != nil {
			return err
		}
	}

	return nil
}

// Stop disables sampling and releases the counters. It is immediate and
// idempotent: stopping an already-stopped profiler is a no-op.
func (p *Profiler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}

	p.closePerfEvents()
	p.probe.Close()
	p.probe = nil
	p.stackTraces = nil
	p.started = false
}

func (p *Profiler) closePerfEvents() {
	for _, fd := range p.perfFDs {
		if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0); err != nil {
			p.logger.Debug().Err(err).Int("fd", fd).Msg("failed to disable perf event")
		}
		unix.Close(fd)
	}
	p.perfFDs = nil
}

// CollectSamples drains everything captured since the last collection. It
// never blocks: it returns what is buffered, possibly nothing. Stack ids
// are resolved against the kernel stack-traces map at collection time.
func (p *Profiler) CollectSamples() []Sample {
	var out []Sample
	for {
		select {
		case data := <-p.samplesCh:
			sample, err := p.decodeSample(data)
			if err != nil {
				p.logger.Debug().Err(err).Msg("skipping malformed sample record")
				continue
			}
			out = append(out, sample)
		default:
			return out
		}
	}
}

// BufUtilization returns the fill percentage of the user-space sample
// channel, for status reporting.
func (p *Profiler) BufUtilization() int {
	if p.samplesCh == nil || cap(p.samplesCh) == 0 {
		return 0
	}
	return len(p.samplesCh) * 100 / cap(p.samplesCh)
}

func (p *Profiler) decodeSample(data []byte) (Sample, error) {
	var evt sampleEvent
	if err := binary.Read(bytes.NewBuffer(data), binary.LittleEndian, &evt); err != nil {
		return Sample{}, err
	}

	sample := Sample{
		IP:          evt.IP,
		PID:         evt.Pid,
		TID:         evt.Tid,
		TimestampNs: evt.TimestampNs,
	}
	if evt.StackID >= 0 && p.stackTraces != nil {
		stack, err := p.stackTraceByID(uint32(evt.StackID))
		if err != nil {
			p.logger.Debug().Err(err).Int32("stack_id", evt.StackID).Msg("failed to resolve stack trace")
		} else {
			sample.Stack = stack
		}
	}

	return sample, nil
}

// stackTraceByID reads one StackTrace from the BPF_MAP_TYPE_STACK_TRACE
// map, keyed by the id returned by the bpf_get_stackid helper, and trims
// the zero-filled tail.
func (p *Profiler) stackTraceByID(stackID uint32) ([]uint64, error) {
	v, err := p.stackTraces.GetValue(unsafe.Pointer(&stackID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get stack trace for id %d", stackID)
	}

	var stackTrace StackTrace
	if err := binary.Read(bytes.NewBuffer(v), binary.LittleEndian, &stackTrace); err != nil {
		return nil, errors.Wrap(err, "failed to decode stack trace")
	}

	stack := make([]uint64, 0, len(stackTrace))
	for _, ip := range stackTrace {
		if ip == 0 {
			break
		}
		stack = append(stack, ip)
	}

	return stack, nil
}
