// Package retry runs an operation under a fixed backoff schedule.
package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a bounded retry schedule. Delays[i] is the wait after the
// (i+1)th failed attempt; when Delays runs out the last delay is reused.
type Policy struct {
	Attempts int
	Delays   []time.Duration
}

// Exponential returns a policy whose delays double from base: base, 2*base, 4*base...
func Exponential(attempts int, base time.Duration) Policy {
	p := Policy{Attempts: attempts}
	for i := 0; i < attempts-1; i++ {
		p.Delays = append(p.Delays, base<<i)
	}
	return p
}

// DefaultPolicy is three attempts with 1s and 2s between them.
func DefaultPolicy() Policy {
	return Exponential(3, time.Second)
}

func (p Policy) waits() []time.Duration {
	n := p.Attempts - 1
	if n < 0 {
		n = 0
	}
	waits := make([]time.Duration, n)
	for i := range waits {
		switch {
		case i < len(p.Delays):
			waits[i] = p.Delays[i]
		case len(p.Delays) > 0:
			waits[i] = p.Delays[len(p.Delays)-1]
		}
	}
	return waits
}

// schedule is a backoff.BackOff over a fixed list of waits.
type schedule struct {
	waits []time.Duration
	next  int
}

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.waits) {
		return backoff.Stop
	}
	d := s.waits[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() { s.next = 0 }

// NotifyFunc observes a failed attempt before the wait that follows it.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns a Permanent error, the policy is
// exhausted or ctx is done. fn receives the 1-based attempt number. The
// last error from fn is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(attempt int) error, notify NotifyFunc) error {
	attempt := 0
	op := func() error {
		attempt++
		return fn(attempt)
	}

	b := backoff.WithContext(&schedule{waits: p.waits()}, ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
}

// Permanent wraps err so Do stops retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// RetryableStatus reports whether an HTTP status is worth retrying:
// server errors, request timeouts and rate limiting.
func RetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError ||
		code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests
}
