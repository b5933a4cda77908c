// Package retry provides the constant-interval retry/backoff used by the
// lock engine and the delete flow. Every suspension point in this module
// (spec §5) waits a fixed interval between attempts, optionally bounded by
// an attempt count, so this trims the teacher's exponential/linear policies
// down to the one shape actually used here.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned once MaxAttempts retries have been made.
var ErrExhausted = errors.New("retry: attempts exhausted")

// unlimited is the MaxAttempts value meaning "retry forever".
const unlimited = 0

// Policy is a constant-interval retry policy, optionally bounded by a
// maximum attempt count. A zero MaxAttempts means unbounded — used by the
// lock engine's retry after the lock symlink vanishes between its create
// attempt and its read (spec §4.4: "Never give up in this branch").
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// next returns the interval to wait before the given retry count, or
// ErrExhausted if the policy's attempt budget has been spent.
func (p Policy) next(retryCount int) (time.Duration, error) {
	if p.MaxAttempts > unlimited && retryCount >= p.MaxAttempts {
		return 0, ErrExhausted
	}
	return p.Interval, nil
}

// Retrier drives repeated attempts at a fixed cadence, stopping early on
// context cancellation.
type Retrier struct {
	policy     Policy
	retryCount int
	mu         sync.Mutex
}

// New creates a Retrier for the given policy.
func New(policy Policy) *Retrier {
	return &Retrier{policy: policy}
}

// Wait blocks for the policy's next interval, or returns ctx.Err() if the
// context is done first, or ErrExhausted if the attempt budget is spent.
func (r *Retrier) Wait(ctx context.Context) error {
	r.mu.Lock()
	interval, err := r.policy.next(r.retryCount)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.retryCount++
	r.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset returns the Retrier to its initial attempt count.
func (r *Retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
}

// Attempts reports how many waits have elapsed so far.
func (r *Retrier) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}
