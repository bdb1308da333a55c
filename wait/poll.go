// Package wait provides bounded polling for conditions owned by the host.
package wait

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidPoll is returned for a non-positive interval or attempt count.
var ErrInvalidPoll = errors.New("poll interval and max attempts must be positive")

// PollUntil checks predicate immediately and then every interval, at most
// maxAttempts times in total. It returns true as soon as the predicate holds
// and false once the attempts are used up. A done ctx stops polling early
// and its error is returned.
func PollUntil(ctx context.Context, predicate func() bool, interval time.Duration, maxAttempts int) (bool, error) {
	if interval <= 0 || maxAttempts <= 0 {
		return false, ErrInvalidPoll
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for attempt := 1; ; attempt++ {
		if predicate() {
			return true, nil
		}
		if attempt >= maxAttempts {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
		}
	}
}
