package db

import (
	"context"
	"math/rand"
	"time"
)

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// backoff implements bounded retry with decorrelated jitter:
// sleep = min(cap, random_between(base, sleep * 3))
type backoff struct {
	maxRetries int
	numRetries int
	duration   time.Duration
}

func newBackoff(maxRetries int) backoff {
	return backoff{maxRetries: maxRetries, duration: minBackoff}
}

func (b *backoff) finished() bool {
	return b.numRetries >= b.maxRetries
}

// wait sleeps for the current backoff duration or until ctx is done.
func (b *backoff) wait(ctx context.Context) error {
	b.numRetries++
	if b.finished() {
		return nil
	}

	select {
	case <-time.After(b.duration):
	case <-ctx.Done():
		return ctx.Err()
	}

	b.duration = minBackoff + time.Duration(rand.Int63n(int64(b.duration*3-minBackoff)))
	if b.duration > maxBackoff {
		b.duration = maxBackoff
	}
	return nil
}
