package probe

import (
	"context"

	"github.com/aquasecurity/libbpfgo/helpers"
	bpf "github.com/maxgio92/libbpfgo"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

const (
	EventsChBufSize       = 4096
	evtRingBufPollTimeout = 60
)

// Probe owns the lifecycle of one loaded BPF object: load, program and map
// lookup, and the user-space side of one kernel ring buffer.
type Probe struct {
	bpfMod *bpf.Module
	evtBuf *bpf.RingBuffer

	*Options
}

type Options struct {
	objBuf  []byte
	objName string

	logger log.Logger
}

type Option func(p *Probe)

func WithObjBuf(buf []byte) Option {
	return func(p *Probe) {
		p.objBuf = buf
	}
}

func WithObjName(name string) Option {
	return func(p *Probe) {
		p.objName = name
	}
}

func WithLogger(logger log.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

func NewProbe(opts ...Option) *Probe {
	probe := &Probe{
		Options: &Options{
			logger: log.Nop(),
		},
	}
	for _, f := range opts {
		f(probe)
	}

	return probe
}

// Init creates the BPF module from the embedded object and loads it into
// the kernel. Load failures caused by missing privilege are surfaced as
// ErrPermissionDenied, everything else as ErrLoadFailed.
func (p *Probe) Init(_ context.Context) error {
	if len(p.objBuf) == 0 {
		return errors.Wrap(ErrLoadFailed, "BPF object is empty, build it with 'make probe'")
	}

	p.checkKernelConfig()
	p.configureBPFLogger()

	var err error
	p.bpfMod, err = bpf.NewModuleFromBufferArgs(bpf.NewModuleArgs{
		BPFObjBuff: p.objBuf,
		BPFObjName: p.objName,
	})
	if err != nil {
		return classify(err, ErrLoadFailed, "failed to create bpf module %s", p.objName)
	}

	if err = p.bpfMod.BPFLoadObject(); err != nil {
		return classify(err, ErrLoadFailed, "failed to load bpf object %s", p.objName)
	}

	return nil
}

// checkKernelConfig logs an early warning when the running kernel was built
// without the BPF options the probe depends on. Load still proceeds: the
// config may simply not be exposed on this system.
func (p *Probe) checkKernelConfig() {
	kc, err := helpers.InitKernelConfig()
	if err != nil {
		p.logger.Debug().Err(err).Msg("kernel config not readable, skipping preflight")
		return
	}
	for _, opt := range []helpers.KernelConfigOption{
		helpers.CONFIG_BPF,
		helpers.CONFIG_BPF_SYSCALL,
	} {
		if kc.GetValue(opt) == helpers.UNDEFINED {
			p.logger.Warn().Str("option", opt.String()).Msg("kernel config option missing, the probe may fail to load")
		}
	}
}

func (p *Probe) configureBPFLogger() {
	bpf.SetLoggerCbs(bpf.Callbacks{
		Log: func(level int, msg string) {
			if level == bpf.LibbpfWarnLevel {
				p.logger.Debug().Msgf("libbpf warning: %s", msg)
			}
		},
	})
}

// Prog looks a program up by name in the loaded object.
func (p *Probe) Prog(name string) (*bpf.BPFProg, error) {
	prog, err := p.bpfMod.GetProgram(name)
	if err != nil {
		return nil, classify(err, ErrLoadFailed, "failed to get bpf program %s", name)
	}

	return prog, nil
}

// Map looks a map up by name in the loaded object.
func (p *Probe) Map(name string) (*bpf.BPFMap, error) {
	m, err := p.bpfMod.GetMap(name)
	if err != nil {
		return nil, classify(err, ErrLoadFailed, "failed to get bpf map %s", name)
	}

	return m, nil
}

// AttachTracepoint attaches a loaded program to a kernel tracepoint.
func (p *Probe) AttachTracepoint(progName, category, name string) error {
	prog, err := p.Prog(progName)
	if err != nil {
		return err
	}
	if _, err := prog.AttachTracepoint(category, name); err != nil {
		return classify(err, ErrAttachFailed, "failed to attach %s to tracepoint %s:%s", progName, category, name)
	}

	return nil
}

// AttachPerfEvent attaches a loaded program to an already-open perf fd.
func (p *Probe) AttachPerfEvent(progName string, fd int) error {
	prog, err := p.Prog(progName)
	if err != nil {
		return err
	}
	if _, err := prog.AttachPerfEvent(fd); err != nil {
		return classify(err, ErrAttachFailed, "failed to attach %s to perf event fd %d", progName, fd)
	}

	return nil
}

// InitEventBuf initializes the user-space reader of the named kernel ring
// buffer and returns the channel records are delivered on.
func (p *Probe) InitEventBuf(mapName string) (chan []byte, error) {
	events := make(chan []byte, EventsChBufSize)

	var err error
	p.evtBuf, err = p.bpfMod.InitRingBuf(mapName, events)
	if err != nil {
		return nil, classify(err, ErrLoadFailed, "failed to initialize ring buffer %s", mapName)
	}

	return events, nil
}

// PollEventBuf runs libbpf ring_buffer__poll() on the probe events ring
// buffer. It must be called after InitEventBuf.
func (p *Probe) PollEventBuf() {
	p.evtBuf.Poll(evtRingBufPollTimeout)
}

func (p *Probe) CloseEventBuf() {
	if p.evtBuf != nil {
		p.evtBuf.Close()
		p.evtBuf = nil
	}
}

// Close releases the BPF object and every link created from it. It is
// idempotent.
func (p *Probe) Close() {
	p.CloseEventBuf()
	if p.bpfMod != nil {
		p.bpfMod.Close()
		p.bpfMod = nil
	}
}
