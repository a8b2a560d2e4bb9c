package settings

const (
	CmdName = "xtrace"
	Version = "0.1.0"

	// EnvTrace toggles in-process function instrumentation for the whole
	// process. It is read once at startup and passed down as configuration.
	EnvTrace = "XTRACE_TRACE"

	// ProbeObjName is the name the BPF object is registered under.
	ProbeObjName = "xtrace"
)
