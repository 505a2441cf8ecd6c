package flowexec

import (
	"time"

	"github.com/petrijr/flowexec/pkg/api"
)

// RetryPolicy retries an action that returns an error.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt && d > 0; i++ {
		if p.BackoffMultiplier > 0 {
			d = time.Duration(float64(d) * p.BackoffMultiplier)
		}
		if p.MaxBackoff > 0 && d > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with RetryBuilder.Action.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - limit caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, limit time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = initial
	p.MaxBackoff = limit
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures a constant backoff between retries.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = delay
	p.MaxBackoff = 0
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries will still respect MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialBackoff = 0
	p.MaxBackoff = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}

// Action wraps a so that errors are retried according to the policy. An
// event result, including an error event, is never retried. Waiting
// between attempts stops when the request context is cancelled.
func (r RetryBuilder) Action(a api.Action) api.Action {
	p := r.policy
	return api.ActionFunc(func(rc api.RequestContext) (api.Event, error) {
		var lastErr error
		for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
			ev, err := a.Execute(rc)
			if err == nil {
				return ev, nil
			}
			lastErr = err
			if attempt == p.MaxAttempts {
				break
			}
			if d := p.delay(attempt); d > 0 {
				t := time.NewTimer(d)
				select {
				case <-rc.Context().Done():
					t.Stop()
					return api.Event{}, rc.Context().Err()
				case <-t.C:
				}
			}
		}
		return api.Event{}, lastErr
	})
}
