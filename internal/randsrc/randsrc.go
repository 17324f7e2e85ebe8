// Package randsrc provides the pure random collaborator cacheengine uses
// for TTL jitter, injectable the same way internal/clock.Source is, so
// tests can pin jitter to a deterministic sequence.
package randsrc

import "math/rand/v2"

// Source produces uniform floats in [0, 1), mirroring math/rand/v2's
// Float64 so the default implementation is a one-line wrapper.
type Source interface {
	Float64() float64
}

// Default wraps the package-level math/rand/v2 generator.
type Default struct{}

// Float64 returns a uniform float in [0, 1).
func (Default) Float64() float64 { return rand.Float64() }

// Fixed is a test Source that always returns the same value.
type Fixed float64

// Float64 returns the fixed value.
func (f Fixed) Float64() float64 { return float64(f) }

var _ Source = Default{}
var _ Source = Fixed(0)
