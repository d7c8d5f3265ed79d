// Package reconnect implements the backoff policy used between
// consecutive connection attempts.
package reconnect

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy computes reconnect delays as min(base * 2^attempt, max).
// The zero randomization factor keeps delays deterministic; the
// connection manager owns the attempt counter and the retry ceiling.
type Policy struct {
	base time.Duration
	max  time.Duration
	eb   *backoff.ExponentialBackOff
}

// NewPolicy creates a policy with the given base delay and cap.
func NewPolicy(base, max time.Duration) *Policy {
	return &Policy{base: base, max: max, eb: newEngine(base, max)}
}

func newEngine(base, max time.Duration) *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxInterval = max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // never give up; the manager enforces the ceiling
	eb.Reset()
	return eb
}

// Next returns the delay before the next attempt and advances the
// sequence.
func (p *Policy) Next() time.Duration {
	return p.eb.NextBackOff()
}

// Delay returns the delay before attempt n (0-based) without advancing
// the policy's own sequence.
func (p *Policy) Delay(attempt int) time.Duration {
	eb := newEngine(p.base, p.max)
	d := eb.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}
	return d
}

// Reset restarts the sequence. Called on a successful connect and on
// explicit disconnect.
func (p *Policy) Reset() {
	p.eb.Reset()
}
