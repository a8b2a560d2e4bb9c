package profile

import (
	log "github.com/rs/zerolog"
)

type ProfilerOptions struct {
	frequency uint64
	pid       int

	probeObjBuf  []byte
	probeObjName string

	logger log.Logger
}

type ProfilerOption func(*Profiler)

func NewProfilerOptions() *ProfilerOptions {
	return &ProfilerOptions{
		frequency: DefaultFrequencyHz,
		pid:       -1,
		logger:    log.Nop(),
	}
}

// WithProfilerFrequency sets the sampling frequency in Hz.
func WithProfilerFrequency(hz uint64) ProfilerOption {
	return func(p *Profiler) {
		if hz > 0 {
			p.frequency = hz
		}
	}
}

// WithProfilerPID restricts sampling to one process. The default (-1)
// samples every task on every online CPU.
func WithProfilerPID(pid int) ProfilerOption {
	return func(p *Profiler) {
		p.pid = pid
	}
}

func WithProfilerProbeObjBuf(buf []byte) ProfilerOption {
	return func(p *Profiler) {
		p.probeObjBuf = buf
	}
}

func WithProfilerProbeObjName(name string) ProfilerOption {
	return func(p *Profiler) {
		p.probeObjName = name
	}
}

func WithProfilerLogger(logger log.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}
