package clock

import (
	"context"
	"time"
)

// Clock supplies the acquisition timestamps and its only suspension point.
type Clock interface {
	// NowMicros returns a monotonic timestamp in microseconds.
	NowMicros() int64
	// YieldFor blocks for d, or until ctx is done in which case ctx.Err()
	// is returned.
	YieldFor(ctx context.Context, d time.Duration) error
}

type systemClock struct {
	epoch time.Time
}

// New returns a Clock backed by the runtime monotonic clock. Timestamps
// count from the moment New is called.
func New() Clock {
	return &systemClock{epoch: time.Now()}
}

func (c *systemClock) NowMicros() int64 {
	return time.Since(c.epoch).Microseconds()
}

func (c *systemClock) YieldFor(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
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
