package options

import (
	"context"

	log "github.com/rs/zerolog"
)

type CommonOptions struct {
	Ctx          context.Context
	Logger       log.Logger
	LogLevel     string
	Probe        []byte
	ProbeObjName string

	// TraceEnabled mirrors the XTRACE_TRACE environment variable, read
	// once at process start.
	TraceEnabled bool
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := new(CommonOptions)
	for _, f := range opts {
		f(o)
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *CommonOptions) {
		o.Logger = logger
	}
}

func WithLogLevel(level string) Option {
	return func(o *CommonOptions) {
		o.LogLevel = level
	}
}

func WithProbe(probe []byte) Option {
	return func(o *CommonOptions) {
		o.Probe = probe
	}
}

func WithProbeObjName(name string) Option {
	return func(o *CommonOptions) {
		o.ProbeObjName = name
	}
}

func WithTraceEnabled(enabled bool) Option {
	return func(o *CommonOptions) {
		o.TraceEnabled = enabled
	}
}
