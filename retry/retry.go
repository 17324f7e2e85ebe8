// Package retry implements RetryPolicy (spec.md §4.7): an immutable,
// tagged-union retry schedule that threads itself forward one failure at a
// time via Advance, per spec.md §9's "use tagged variants, not open-ended
// subclassing, Advance returns a new variant value" guidance.
//
// Grounded on GabrielNunesIT/go-libs/retry/retry.go's Strategy enum and
// exponential/jitter delay math, restructured from that package's stateless
// per-attempt computeDelay into a value that carries its own progress —
// singleflighttask needs to remember how many attempts are left and what
// the current delay grew to, across calls separated by real wall-clock
// time, not just within one retry loop.
package retry

import (
	"math"
	"time"
)

// MaxFiniteDelay is the largest delay any DelayPolicy will ever produce;
// growth is clamped to it instead of overflowing, per spec.md §4.7.
const MaxFiniteDelay = time.Duration(math.MaxInt64)

// delayShape tags which DelayPolicy variant is active.
type delayShape int

const (
	shapeFixed delayShape = iota
	shapeExponential
	shapeExpThenFixed
	shapeFixedThenExp
)

// DelayPolicy is the inter-attempt delay schedule, a tagged union of the
// four shapes in spec.md §4.7's table. The zero value is Fixed(0) — not
// generally useful, construct with the functions below.
type DelayPolicy struct {
	shape delayShape

	d      time.Duration // fixed: d · exponential: current delay
	r      float64       // growth rate, clamped to >= 1
	dFinal time.Duration // expThenFixed's eventual fixed delay
	kMax   int           // expThenFixed/fixedThenExp: growth steps remaining
	dInit  time.Duration // fixedThenExp: the exponential delay to switch into
}

// Fixed always delays by d.
func Fixed(d time.Duration) DelayPolicy {
	return DelayPolicy{shape: shapeFixed, d: clampDelay(d)}
}

// Exponential starts at d0 and multiplies by rate (clamped to >= 1) after
// every advance, saturating at MaxFiniteDelay.
func Exponential(d0 time.Duration, rate float64) DelayPolicy {
	return DelayPolicy{shape: shapeExponential, d: clampDelay(d0), r: clampRate(rate)}
}

// ExpThenFixed grows d0 by rate for kMax advances, then settles on dFinal
// forever.
func ExpThenFixed(d0, dFinal time.Duration, kMax int, rate float64) DelayPolicy {
	return DelayPolicy{
		shape: shapeExpThenFixed, d: clampDelay(d0), dFinal: clampDelay(dFinal),
		kMax: kMax, r: clampRate(rate),
	}
}

// FixedThenExp holds at d0 for kMax advances, then switches to an
// Exponential schedule starting at dInitExp.
func FixedThenExp(d0, dInitExp time.Duration, kMax int, rate float64) DelayPolicy {
	return DelayPolicy{
		shape: shapeFixedThenExp, d: clampDelay(d0), dInit: clampDelay(dInitExp),
		kMax: kMax, r: clampRate(rate),
	}
}

// Current is the delay to wait before the next attempt.
func (d DelayPolicy) Current() time.Duration { return d.d }

// Advance returns the policy's next state, per spec.md §4.7's table.
func (d DelayPolicy) Advance() DelayPolicy {
	switch d.shape {
	case shapeFixed:
		return d
	case shapeExponential:
		d.d = clampDelay(scale(d.d, d.r))
		return d
	case shapeExpThenFixed:
		if d.kMax > 0 {
			d.d = clampDelay(scale(d.d, d.r))
			d.kMax--
			return d
		}
		return Fixed(d.dFinal)
	case shapeFixedThenExp:
		if d.kMax > 0 {
			d.kMax--
			return d
		}
		return Exponential(d.dInit, d.r)
	default:
		return d
	}
}

func scale(d time.Duration, r float64) time.Duration {
	f := float64(d) * r
	if f >= float64(MaxFiniteDelay) {
		return MaxFiniteDelay
	}
	return time.Duration(f)
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func clampRate(r float64) float64 {
	if r < 1 {
		return 1
	}
	return r
}

// retryShape tags which Policy variant is active.
type retryShape int

const (
	shapeNever retryShape = iota
	shapeCount
	shapeInfinite
)

// Policy is a RetryPolicy value: how many attempts remain (if finite) and
// the DelayPolicy to consult between them. The zero value is Never.
type Policy struct {
	shape    retryShape
	attempts int // shapeCount only: attempts remaining
	delay    DelayPolicy
}

// Never retries zero times.
func Never() Policy { return Policy{shape: shapeNever} }

// Count retries up to n times (n <= 0 is equivalent to Never, per spec.md
// §4.7's "count(0, _) is equivalent to never").
func Count(n int, delay DelayPolicy) Policy {
	if n <= 0 {
		return Never()
	}
	return Policy{shape: shapeCount, attempts: n, delay: delay}
}

// Infinite retries forever.
func Infinite(delay DelayPolicy) Policy {
	return Policy{shape: shapeInfinite, delay: delay}
}

// ShouldRetry reports whether another attempt should be scheduled after a
// failure.
func (p Policy) ShouldRetry() bool {
	switch p.shape {
	case shapeCount:
		return p.attempts > 0
	case shapeInfinite:
		return true
	default:
		return false
	}
}

// NextDelay is the delay to wait before the next attempt, valid only when
// ShouldRetry() is true (Never always returns 0).
func (p Policy) NextDelay() time.Duration {
	if p.shape == shapeNever {
		return 0
	}
	return p.delay.Current()
}

// Advance returns the policy to use for the attempt after this failure:
// the delay policy advances, and a finite count decrements.
func (p Policy) Advance() Policy {
	switch p.shape {
	case shapeCount:
		p.attempts--
		p.delay = p.delay.Advance()
		return p
	case shapeInfinite:
		p.delay = p.delay.Advance()
		return p
	default:
		return p
	}
}

// AttemptsRemaining reports the remaining retry count for Count policies,
// and 0 for Never/Infinite (infinite has no finite count to report).
func (p Policy) AttemptsRemaining() int {
	if p.shape == shapeCount {
		return p.attempts
	}
	return 0
}
