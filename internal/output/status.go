package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

// PrettyCaptureStatus renders one refresh of the live capture status bar:
// event throughput, buffered-channel utilization and events dropped so far.
func PrettyCaptureStatus(rate uint64, bufUtil int, dropped uint64) string {
	return fmt.Sprintf("\r%-20s %-30s %-20s",
		fmt.Sprintf("Events/s: %6d", rate),
		fmt.Sprintf("Events Buffer: [%s] %3d%%", ProgressBar(bufUtil, 10), bufUtil),
		fmt.Sprintf("Dropped: %6d", dropped),
	)
}
