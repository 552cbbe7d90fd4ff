package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted wraps the last error once every attempt allowed by a
// RetryPolicy has failed with a retryable error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryClass tells Retry how to treat the error returned by an attempt.
type RetryClass int

const (
	// RetryNever marks the error as permanent: Retry returns it at once.
	RetryNever RetryClass = iota
	// RetryScheduled waits according to the policy's delay schedule
	// (rate limits, non-200 responses).
	RetryScheduled
	// RetryTransport waits the policy's short transport delay (connection
	// resets, undecodable bodies).
	RetryTransport
)

// RetryPolicy is a declarative retry description shared by every caller of
// Retry.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of calls, including the first.
	MaxAttempts int
	// Delays is the wait before the n-th retry of a RetryScheduled error.
	// The last entry repeats.
	Delays []time.Duration
	// TransportDelay is the wait before retrying a RetryTransport error.
	TransportDelay time.Duration
	// Classify maps an attempt error to its class. Nil treats every error
	// as RetryScheduled.
	Classify func(error) RetryClass
	// Notify is called before each wait.
	Notify func(err error, wait time.Duration)
}

// DefaultRetryPolicy returns the provider policy: three attempts, waiting
// 62s and then 122s after rate limits, 5s after transport failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Delays:         []time.Duration{62 * time.Second, 122 * time.Second},
		TransportDelay: 5 * time.Second,
	}
}

func (p RetryPolicy) classify(err error) RetryClass {
	if p.Classify == nil {
		return RetryScheduled
	}
	return p.Classify(err)
}

// scheduleBackOff feeds the policy's delay schedule to backoff. The class of
// the most recent failure selects between the schedule and the transport
// delay.
type scheduleBackOff struct {
	policy RetryPolicy
	last   RetryClass
	n      int
}

func (b *scheduleBackOff) Reset() { b.n = 0 }

func (b *scheduleBackOff) NextBackOff() time.Duration {
	b.n++
	if b.last == RetryTransport {
		return b.policy.TransportDelay
	}
	if len(b.policy.Delays) == 0 {
		return 0
	}
	i := min(b.n-1, len(b.policy.Delays)-1)
	return b.policy.Delays[i]
}

// Retry calls fn until it succeeds, returns an error classified RetryNever,
// or the policy's attempts are exhausted. Waits only suspend the calling
// goroutine and end early when ctx is cancelled.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	sched := &scheduleBackOff{policy: p}
	attempts := 0
	var lastRetryable error

	op := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		class := p.classify(err)
		if class == RetryNever {
			lastRetryable = nil
			return backoff.Permanent(err)
		}
		sched.last = class
		lastRetryable = err
		return err
	}

	var b backoff.BackOff = sched
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = p.Notify
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastRetryable != nil && errors.Is(err, lastRetryable) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}
	return err
}
