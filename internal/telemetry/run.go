package telemetry

import (
	"context"
	"fmt"
	"time"
)

// Run ticks sim every interval and hands each snapshot to publish until ctx is done or publish
// fails. The timer is released on every return path, so no tick fires after Run returns. Ticks
// run on the calling goroutine and never overlap.
func Run(ctx context.Context, sim *Simulator, publish func(Snapshot) error) error {
	ticker := time.NewTicker(sim.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// A tick and a cancellation can be ready together, cancellation wins.
			if ctx.Err() != nil {
				return nil
			}
			if err := publish(sim.Tick()); err != nil {
				return fmt.Errorf("failed to publish telemetry: %w", err)
			}
		}
	}
}
