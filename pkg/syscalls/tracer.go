package syscalls

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/xtrace/pkg/probe"
)

const (
	tracepointCategory = "raw_syscalls"
	tracepointEnter    = "sys_enter"
	tracepointExit     = "sys_exit"

	ProgNameEnter  = "handle_sys_enter"
	ProgNameExit   = "handle_sys_exit"
	RingBufMapName = "syscall_events"
)

// Tracer loads the kernel syscall probe, attaches it to the syscall entry
// and exit tracepoints and polls its ring buffer from user space.
type Tracer struct {
	probe *probe.Probe

	eventsCh chan []byte
	attached bool
	mu       sync.Mutex

	*TracerOptions
}

func NewTracer(opts ...TracerOption) *Tracer {
	tracer := &Tracer{
		TracerOptions: &TracerOptions{
			ringBufName: RingBufMapName,
			pid:         -1,
			logger:      log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(tracer)
	}

	return tracer
}

// Attach loads the probe and binds it to both tracepoints. Failures are
// typed: probe.ErrPermissionDenied, probe.ErrLoadFailed or
// probe.ErrAttachFailed. All three are non-recoverable for this process;
// callers must not retry without elevated privilege.
func (t *Tracer) Attach(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached {
		return nil
	}

	t.probe = probe.NewProbe(
		probe.WithObjBuf(t.probeObjBuf),
		probe.WithObjName(t.probeObjName),
		probe.WithLogger(t.logger),
	)
	if err := t.probe.Init(ctx); err != nil {
		return err
	}

	if err := t.probe.AttachTracepoint(ProgNameEnter, tracepointCategory, tracepointEnter); err != nil {
		t.probe.Close()
		return err
	}
	if err := t.probe.AttachTracepoint(ProgNameExit, tracepointCategory, tracepointExit); err != nil {
		t.probe.Close()
		return err
	}

	var err error
	t.eventsCh, err = t.probe.InitEventBuf(t.ringBufName)
	if err != nil {
		t.probe.Close()
		return err
	}
	t.probe.PollEventBuf()

	t.attached = true
	t.logger.Debug().Str("category", tracepointCategory).Msg("syscall probe attached")

	return nil
}

// ReadEvents is a non-blocking poll: it decodes and returns whatever the
// kernel side has published since the last call, possibly nothing. It is
// safe to call repeatedly in a loop without starving the kernel side, which
// drops records on its own when the per-CPU buffer fills.
func (t *Tracer) ReadEvents() []Event {
	var out []Event
	for {
		select {
		case data := <-t.eventsCh:
			evt, err := decodeEvent(data)
			if err != nil {
				t.logger.Debug().Err(err).Msg("skipping malformed syscall record")
				continue
			}
			if t.pid > 0 && int(evt.Pid) != t.pid {
				continue
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

// Detach closes the ring buffer reader and unloads the probe. It is
// immediate and idempotent: detaching an already-detached tracer is a no-op.
func (t *Tracer) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.attached && t.probe == nil {
		return
	}
	if t.probe != nil {
		t.probe.Close()
		t.probe = nil
	}
	t.attached = false
}

// BufUtilization returns the fill percentage of the user-space event
// channel, for status reporting.
func (t *Tracer) BufUtilization() int {
	if t.eventsCh == nil || cap(t.eventsCh) == 0 {
		return 0
	}
	return len(t.eventsCh) * 100 / cap(t.eventsCh)
}

func decodeEvent(data []byte) (Event, error) {
	var evt Event
	err := binary.Read(bytes.NewBuffer(data), binary.LittleEndian, &evt)

	return evt, err
}
