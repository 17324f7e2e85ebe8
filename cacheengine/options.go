package cacheengine

import (
	"math"
	"time"

	"github.com/yangchenlarkin/monstra/internal/clock"
	"github.com/yangchenlarkin/monstra/internal/randsrc"
	"github.com/yangchenlarkin/monstra/metrics"
	"github.com/yangchenlarkin/monstra/monstralog"
)

// Sentinels a caller passes for Set's expiredIn parameter (spec.md §4.6).
// Any value >= 0 is a literal TTL — 0 means "expired on arrival" per
// spec.md §4.5/§8, exactly like the teacher's "non-positive ttl disables
// expiration" convention inverted for a cache that needs a real zero.
const (
	// UseDefault tells Set to fall back to Options.DefaultTTL (or
	// DefaultTTLForNullEntry for an absence marker).
	UseDefault time.Duration = -1
	// Forever marks an entry as never expiring.
	Forever time.Duration = -2
)

const defaultCost = 1

// Options configures an Engine. Every field's zero value is documented
// below; unlike the teacher's cache.Options (which panics on
// Capacity <= 0), Capacity's zero value is a valid, tested boundary
// (spec.md §8: "capacity = 0 ⇒ every set reports the value evicted") so it
// is taken literally rather than silently replaced by a default — see
// DESIGN.md for the resolved ambiguity between Go's zero-value Options
// convention and spec.md's "default 1024" note.
type Options[K comparable, V any] struct {
	// EnableThreadSynchronization serializes every public Engine method
	// with a process-level mutex. If false, callers must synchronize
	// externally.
	EnableThreadSynchronization bool

	// Capacity is the entry-count budget. Negative values are normalized
	// to 0. Zero means "accept no entries."
	Capacity int

	// MemoryBudget is the summed-cost budget in bytes. Zero (the Go zero
	// value, i.e. not set by the caller) defaults to unbounded — spec.md
	// §4.6 treats memoryBudget as optional, and a cache built with only
	// a Capacity shouldn't silently reject every Set. A caller that wants
	// to reject every insert outright must say so with an explicit
	// negative value, the only way left to distinguish "deliberately
	// tiny" from "never configured" once zero defaults to unbounded — see
	// DESIGN.md.
	MemoryBudget int64

	// DefaultTTL is used by Set when the caller passes UseDefault.
	// Forever (the zero Options value resolves to Forever) means no
	// expiration.
	DefaultTTL time.Duration
	// DefaultTTLForNullEntry is DefaultTTL's counterpart for absence
	// markers.
	DefaultTTLForNullEntry time.Duration

	// TTLJitter adds a uniform random offset in [-jitter, +jitter] to
	// every finite effective TTL at insert time. Never applied to
	// Forever entries.
	TTLJitter time.Duration

	// KeyValidator rejects keys that fail it; nil accepts every key.
	KeyValidator func(K) bool
	// CostEstimator computes a value's byte cost; nil charges a fixed
	// small constant per entry (matching the teacher's Options.Cost
	// nil-default in cache/options.go).
	CostEstimator func(V) int64

	Metrics metrics.Cache
	Clock   clock.Source
	Random  randsrc.Source
	Logger  monstralog.Logger
}

func (o *Options[K, V]) withDefaults() Options[K, V] {
	out := *o
	if out.Capacity < 0 {
		out.Capacity = 0
	}
	if out.MemoryBudget == 0 {
		out.MemoryBudget = math.MaxInt64
	}
	if out.DefaultTTL == 0 {
		out.DefaultTTL = Forever
	}
	if out.DefaultTTLForNullEntry == 0 {
		out.DefaultTTLForNullEntry = Forever
	}
	if out.KeyValidator == nil {
		out.KeyValidator = func(K) bool { return true }
	}
	if out.Metrics == nil {
		out.Metrics = metrics.NoopCache{}
	}
	if out.Clock == nil {
		out.Clock = clock.System{}
	}
	if out.Random == nil {
		out.Random = randsrc.Default{}
	}
	if out.Logger == nil {
		out.Logger = monstralog.Noop{}
	}
	return out
}

func (o *Options[K, V]) costOf(v V) int64 {
	if o.CostEstimator == nil {
		return defaultCost
	}
	c := o.CostEstimator(v)
	if c < 0 {
		c = 0
	}
	return c
}
