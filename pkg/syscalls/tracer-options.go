package syscalls

import (
	log "github.com/rs/zerolog"
)

type TracerOptions struct {
	probeObjBuf  []byte
	probeObjName string
	ringBufName  string

	pid int

	logger log.Logger
}

type TracerOption func(*Tracer)

func WithTracerProbeObjBuf(buf []byte) TracerOption {
	return func(t *Tracer) {
		t.probeObjBuf = buf
	}
}

func WithTracerProbeObjName(name string) TracerOption {
	return func(t *Tracer) {
		t.probeObjName = name
	}
}

func WithTracerRingBufName(name string) TracerOption {
	return func(t *Tracer) {
		t.ringBufName = name
	}
}

// WithTracerPID filters the returned events by kernel task id. The probe
// still fires for every traced process; filtering happens at read time.
func WithTracerPID(pid int) TracerOption {
	return func(t *Tracer) {
		t.pid = pid
	}
}

func WithTracerLogger(logger log.Logger) TracerOption {
	return func(t *Tracer) {
		t.logger = logger
	}
}
