package acquisition

import (
	"context"
	"time"
)

// Clock is the time source of the scheduler
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration)
}

type systemClock struct{}

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
