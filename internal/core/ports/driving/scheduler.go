package driving

import "context"

// Scheduler runs due syncs, retention and event redrive in the background.
type Scheduler interface {
	// Start begins running scheduled work.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop and waits for in-flight runs.
	Stop() error
}
