package hotspot

import (
	"fmt"
	"io"
	"sort"

	"github.com/maxgio92/xtrace/pkg/profile"
)

// Entry is one ranked hotspot: a single instruction pointer, the number of
// samples that landed on it and its share of the total sample set.
type Entry struct {
	IP      string
	Count   int
	Percent float64
}

// Analyze groups samples purely by instruction pointer, ignoring the rest
// of the stack, and returns the topN entries sorted by descending sample
// count. Ties break on ascending instruction pointer for determinism.
//
// It answers "which single location is hottest", as opposed to the
// flamegraph's whole-stack view.
func Analyze(samples []profile.Sample, topN int) []Entry {
	counts := make(map[uint64]int, len(samples))
	for _, sample := range samples {
		counts[sample.IP]++
	}

	ips := make([]uint64, 0, len(counts))
	for ip := range counts {
		ips = append(ips, ip)
	}
	sort.Slice(ips, func(i, j int) bool {
		if counts[ips[i]] != counts[ips[j]] {
			return counts[ips[i]] > counts[ips[j]]
		}
		return ips[i] < ips[j]
	})

	if topN > 0 && topN < len(ips) {
		ips = ips[:topN]
	}

	total := len(samples)
	entries := make([]Entry, 0, len(ips))
	for _, ip := range ips {
		entries = append(entries, Entry{
			IP:      fmt.Sprintf("%#016x", ip),
			Count:   counts[ip],
			Percent: float64(counts[ip]) / float64(total) * 100,
		})
	}

	return entries
}

// WriteTable renders the ranked entries as a fixed-width text table.
func WriteTable(w io.Writer, entries []Entry) error {
	if _, err := fmt.Fprintf(w, "%-18s %8s %8s\n", "ADDRESS", "SAMPLES", "PERCENT"); err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := fmt.Fprintf(w, "%-18s %8d %7.2f%%\n", entry.IP, entry.Count, entry.Percent); err != nil {
			return err
		}
	}

	return nil
}
