package database

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

const maxShift = 62

// exponentialWithJitter returns a random duration in [0, base * 2^attempt).
func exponentialWithJitter(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	delay := int64(math.MaxInt64)
	if int64(base) <= math.MaxInt64/multiplier {
		delay = int64(base) * multiplier
	}
	return time.Duration(rand.Int63n(delay)) // #nosec G404 -- jitter only
}

// sleepWithContext sleeps for d unless ctx ends first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
