package autoclaim

import (
	"context"
	"time"
)

// Clock abstracts wall time and interruptible sleeping so the scheduler's
// timing policy is testable without multi-minute waits.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	// Returns ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewClock returns the wall-time clock used in production.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
