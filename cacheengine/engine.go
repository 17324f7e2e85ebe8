// Package cacheengine implements CacheEngine (spec.md §4.6): a bounded,
// TTL-aware, absence-caching key/value store built on ttlprioritylru.Map,
// the way the teacher's cache.Cache is built directly on its shard array —
// except a single shard is enough here since spec.md doesn't call for
// striped concurrency, just an optional all-or-nothing mutex
// (EnableThreadSynchronization).
package cacheengine

import (
	"sync"
	"time"

	"github.com/yangchenlarkin/monstra/metrics"
	"github.com/yangchenlarkin/monstra/ttlprioritylru"
)

// noopLocker implements sync.Locker with no-ops, used when
// EnableThreadSynchronization is false so Engine's methods never need an
// `if synchronized` branch on the hot path.
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Engine is a bounded cache keyed by K storing values V, generalizing the
// teacher's single shard (cache/shard.go) with TTL, absence markers, and a
// byte-cost budget layered on top of ttlprioritylru.Map's entry-count bound.
type Engine[K comparable, V any] struct {
	opt Options[K, V]
	mu  sync.Locker

	data     *ttlprioritylru.Map[K, record[V]]
	costOf   map[K]int64
	cost     int64
	stats    Statistics
	onAccess func(K, Result[V])
}

// New constructs an Engine. onAccess, if non-nil, is called synchronously
// after every Get with the key and its Result — the "optional OnAccess
// callback" of spec.md §4.6.
func New[K comparable, V any](opt Options[K, V], onAccess func(K, Result[V])) *Engine[K, V] {
	o := opt.withDefaults()
	var mu sync.Locker = noopLocker{}
	if o.EnableThreadSynchronization {
		mu = &sync.Mutex{}
	}
	return &Engine[K, V]{
		opt:      o,
		mu:       mu,
		data:     ttlprioritylru.New[K, record[V]](o.Capacity, o.Clock),
		costOf:   make(map[K]int64),
		onAccess: onAccess,
	}
}

// Count returns the number of resident entries (values and absence markers
// combined).
func (e *Engine[K, V]) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.Count()
}

// Cost returns the current summed cost of resident entries.
func (e *Engine[K, V]) Cost() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cost
}

// Statistics returns a snapshot of accumulated Get outcomes.
func (e *Engine[K, V]) Statistics() Snapshot { return e.stats.Snapshot() }

// Get looks up k. An invalid key (per Options.KeyValidator) reports Invalid
// without touching the map. A resident, unexpired absence marker reports
// AbsentHit; a resident value reports ValueHit; anything else — including a
// key whose TTL lazily expired on this very call — reports Miss.
func (e *Engine[K, V]) Get(k K) Result[V] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opt.KeyValidator(k) {
		e.opt.Metrics.Access(metrics.RecordInvalidKey)
		e.stats.record(Invalid)
		r := invalidResult[V]()
		e.reportAccess(k, r)
		return r
	}

	rec, ok := e.data.Get(k)
	if !ok {
		// Self-healing cost bookkeeping: if k was tracked and is now gone,
		// ttlprioritylru.Get evicted it lazily on its TTL. This is a no-op
		// if k was never tracked (or was already removed through a path
		// that updated costOf itself).
		e.forgetCost(k)
		e.opt.Metrics.Access(metrics.RecordMiss)
		e.stats.record(Miss)
		r := missResult[V]()
		e.reportAccess(k, r)
		return r
	}

	var r Result[V]
	if rec.p.absent {
		e.opt.Metrics.Access(metrics.RecordAbsentHit)
		e.stats.record(AbsentHit)
		r = absentResult[V]()
	} else {
		e.opt.Metrics.Access(metrics.RecordValueHit)
		e.stats.record(ValueHit)
		r = valueResult(rec.p.value)
	}
	e.reportAccess(k, r)
	return r
}

func (e *Engine[K, V]) reportAccess(k K, r Result[V]) {
	if e.onAccess != nil {
		e.onAccess(k, r)
	}
}

// Set inserts or overwrites k's value at priority, expiring at expiredIn
// from now (UseDefault, Forever, or a literal non-negative Duration — see
// options.go). It returns the values evicted to keep the engine under its
// capacity and memory-cost budgets, per spec.md §4.6's "[evicted values]"
// return shape.
func (e *Engine[K, V]) Set(k K, v V, priority float64, expiredIn time.Duration) (evicted []V) {
	return e.set(k, payload[V]{value: v}, e.opt.costOf(v), priority, expiredIn, e.opt.DefaultTTL)
}

// SetAbsent records k as a confirmed-absent key: a subsequent Get reports
// AbsentHit instead of Miss, letting callers cache negative lookups without
// losing the Invalid/Miss distinction the spec requires.
func (e *Engine[K, V]) SetAbsent(k K, priority float64, expiredIn time.Duration) (evicted []V) {
	return e.set(k, payload[V]{absent: true}, defaultCost, priority, expiredIn, e.opt.DefaultTTLForNullEntry)
}

func (e *Engine[K, V]) set(k K, p payload[V], cost int64, priority float64, expiredIn, dflt time.Duration) []V {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []V
	if !e.opt.KeyValidator(k) {
		out = append(out, p.value)
		return out
	}

	expiresAt := e.resolveExpiry(expiredIn, dflt)

	// withDefaults normalizes an unset (zero-value) MemoryBudget to
	// unbounded, so reaching a non-positive budget here means the caller
	// explicitly asked for reject-everything with a negative value.
	if e.opt.MemoryBudget <= 0 {
		e.opt.Metrics.Evict(metrics.EvictOversize)
		out = append(out, p.value)
		return out
	}
	// An entry whose own cost alone exceeds the budget can never fit.
	if cost > e.opt.MemoryBudget {
		e.opt.Metrics.Evict(metrics.EvictOversize)
		out = append(out, p.value)
		return out
	}

	if old, had := e.data.Remove(k); had {
		e.cost -= old.cost
		delete(e.costOf, k)
	}

	ek, ev, wasEvicted := e.data.Set(k, record[V]{p: p, cost: cost}, priority, expiresAt)
	if wasEvicted && ek == k {
		// Rejected outright (e.g. capacity 0, or expired-on-arrival).
		out = append(out, ev.p.value)
		e.opt.Metrics.Evict(metrics.EvictExpired)
		return out
	}
	if wasEvicted {
		e.cost -= ev.cost
		delete(e.costOf, ek)
		out = append(out, ev.p.value)
		e.opt.Metrics.Evict(metrics.EvictLeastValuable)
	}
	e.cost += cost
	e.costOf[k] = cost

	out = append(out, e.enforceCostBudget(k)...)
	e.opt.Metrics.Size(e.data.Count(), e.cost)
	return out
}

// enforceCostBudget evicts expired entries first, then LRU-of-lowest-
// priority entries, until total cost is within budget. just is the key this
// very call admitted; if no entry is left to evict, just is removed too.
func (e *Engine[K, V]) enforceCostBudget(just K) []V {
	var out []V
	for e.cost > e.opt.MemoryBudget {
		if removed := e.data.RemoveExpiredEntries(); len(removed) > 0 {
			for _, r := range removed {
				e.cost -= r.Value.cost
				delete(e.costOf, r.Key)
				out = append(out, r.Value.p.value)
				e.opt.Metrics.Evict(metrics.EvictExpired)
			}
			continue
		}
		k, rec, ok := e.data.RemoveLRU()
		if !ok {
			// No progress possible — bail out by evicting the entry this
			// call just inserted too, per spec.md §4.6's termination
			// guarantee.
			if rec2, had := e.data.Remove(just); had {
				e.cost -= rec2.cost
				delete(e.costOf, just)
				out = append(out, rec2.p.value)
			}
			break
		}
		e.cost -= rec.cost
		delete(e.costOf, k)
		out = append(out, rec.p.value)
		e.opt.Metrics.Evict(metrics.EvictLeastValuable)
	}
	return out
}

// resolveExpiry turns expiredIn (UseDefault/Forever/literal) plus jitter
// into an absolute deadline.
func (e *Engine[K, V]) resolveExpiry(expiredIn, dflt time.Duration) time.Time {
	ttl := expiredIn
	if ttl == UseDefault {
		ttl = dflt
	}
	if ttl == Forever {
		return e.opt.Clock.Infinity()
	}
	if ttl < 0 {
		ttl = 0
	}
	ttl = e.jitter(ttl)
	return e.opt.Clock.Now().Add(ttl)
}

func (e *Engine[K, V]) jitter(ttl time.Duration) time.Duration {
	if e.opt.TTLJitter <= 0 || ttl <= 0 {
		return ttl
	}
	r := e.opt.Random.Float64()
	offset := time.Duration((r*2 - 1) * float64(e.opt.TTLJitter))
	out := ttl + offset
	if out <= 0 {
		out = time.Nanosecond
	}
	return out
}

// Remove deletes k if present.
func (e *Engine[K, V]) Remove(k K) (V, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.data.Remove(k)
	if !ok {
		var zero V
		return zero, false
	}
	e.cost -= rec.cost
	delete(e.costOf, k)
	e.opt.Metrics.Size(e.data.Count(), e.cost)
	return rec.p.value, true
}

// RemoveExpired sweeps every currently-expired entry and returns their
// values.
func (e *Engine[K, V]) RemoveExpired() []V {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := e.data.RemoveExpiredEntries()
	out := make([]V, 0, len(removed))
	for _, r := range removed {
		e.cost -= r.Value.cost
		delete(e.costOf, r.Key)
		out = append(out, r.Value.p.value)
		e.opt.Metrics.Evict(metrics.EvictExpired)
	}
	e.opt.Metrics.Size(e.data.Count(), e.cost)
	return out
}

// RemoveLeastValuable evicts the single lowest-priority (LRU-among-equal-
// priority) resident entry, reporting it as spec.md §4.6's
// removeLeastValuable() operation. It reports false if the engine is empty.
func (e *Engine[K, V]) RemoveLeastValuable() (V, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k, rec, ok := e.data.RemoveLRU()
	if !ok {
		var zero V
		return zero, false
	}
	e.cost -= rec.cost
	delete(e.costOf, k)
	e.opt.Metrics.Evict(metrics.EvictLeastValuable)
	e.opt.Metrics.Size(e.data.Count(), e.cost)
	return rec.p.value, true
}

// RemoveToFraction evicts expired entries first, then LRU-of-lowest-priority
// entries, until Count() <= ceil(Capacity * p). p is clamped to [0, 1].
func (e *Engine[K, V]) RemoveToFraction(p float64) []V {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	target := int(float64(e.data.Capacity()) * p)
	if extra := float64(e.data.Capacity())*p - float64(target); extra > 0 {
		target++
	}

	var out []V
	for e.data.Count() > target {
		if removed := e.data.RemoveExpiredEntries(); len(removed) > 0 {
			for _, r := range removed {
				e.cost -= r.Value.cost
				delete(e.costOf, r.Key)
				out = append(out, r.Value.p.value)
				e.opt.Metrics.Evict(metrics.EvictExpired)
			}
			continue
		}
		k, rec, ok := e.data.RemoveLRU()
		if !ok {
			break
		}
		e.cost -= rec.cost
		delete(e.costOf, k)
		out = append(out, rec.p.value)
		e.opt.Metrics.Evict(metrics.EvictLeastValuable)
	}
	e.opt.Metrics.Size(e.data.Count(), e.cost)
	return out
}

func (e *Engine[K, V]) forgetCost(k K) {
	if c, had := e.costOf[k]; had {
		e.cost -= c
		delete(e.costOf, k)
	}
}
