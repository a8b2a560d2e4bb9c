package flamegraph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/maxgio92/xtrace/pkg/profile"
)

// FrameFormatter renders one stack frame. The default prints the raw
// instruction pointer in hex; a symbolizing formatter can be plugged in
// as an optional downstream step.
type FrameFormatter func(ip uint64) string

func HexFrame(ip uint64) string {
	return fmt.Sprintf("%#x", ip)
}

// FlameGraph maps a semicolon-joined stack key to an occurrence count.
// Keys follow the brendangregg folded convention: innermost frame last.
// It is built once from a finished sample set and deterministic thereafter.
type FlameGraph struct {
	counts map[string]uint64
}

type Option func(*options)

type options struct {
	frameFormatter FrameFormatter
}

func WithFrameFormatter(f FrameFormatter) Option {
	return func(o *options) {
		o.frameFormatter = f
	}
}

// FromSamples folds the sample set: samples with identical stacks collapse
// into one key with a count. A sample without a captured stack falls back
// to its instruction pointer as a single frame.
func FromSamples(samples []profile.Sample, opts ...Option) *FlameGraph {
	o := &options{
		frameFormatter: HexFrame,
	}
	for _, f := range opts {
		f(o)
	}

	fg := &FlameGraph{
		counts: make(map[string]uint64, len(samples)),
	}
	for _, sample := range samples {
		fg.counts[foldStack(sample, o.frameFormatter)]++
	}

	return fg
}

func foldStack(sample profile.Sample, format FrameFormatter) string {
	if len(sample.Stack) == 0 {
		return format(sample.IP)
	}

	// Stacks are captured innermost first; the folded convention wants
	// innermost last.
	frames := make([]string, 0, len(sample.Stack))
	for i := len(sample.Stack) - 1; i >= 0; i-- {
		frames = append(frames, format(sample.Stack[i]))
	}

	return strings.Join(frames, ";")
}

// WriteFolded serializes one unique stack per line as "frames count",
// sorted by key so repeated runs over the same sample set produce
// byte-identical text.
func (f *FlameGraph) WriteFolded(w io.Writer) error {
	keys := make([]string, 0, len(f.counts))
	for key := range f.counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(w, "%s %d\n", key, f.counts[key]); err != nil {
			return err
		}
	}

	return nil
}

// Count returns the occurrences folded under one stack key.
func (f *FlameGraph) Count(key string) uint64 {
	return f.counts[key]
}

// Len returns the number of unique stacks.
func (f *FlameGraph) Len() int {
	return len(f.counts)
}
