package probe

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	// ErrPermissionDenied means the process lacks the privilege to install
	// kernel probes or program hardware counters (root, or CAP_BPF plus
	// CAP_PERFMON). Callers must not retry without elevated privilege.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrLoadFailed means the BPF object could not be created or loaded.
	ErrLoadFailed = errors.New("bpf program load failed")

	// ErrAttachFailed means the loaded program could not be bound to its
	// tracepoint or perf event.
	ErrAttachFailed = errors.New("bpf program attach failed")
)

// classify wraps err with the matching taxonomy sentinel so callers can
// branch with errors.Is. Privilege failures always win over the fallback.
func classify(err error, fallback error, format string, args ...interface{}) error {
	sentinel := fallback
	if IsPermission(err) {
		sentinel = ErrPermissionDenied
	}

	return errors.Wrapf(errors.WithMessage(sentinel, err.Error()), format, args...)
}

// IsPermission reports whether err is a privilege failure.
func IsPermission(err error) bool {
	return errors.Is(err, os.ErrPermission) ||
		errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.EACCES)
}
