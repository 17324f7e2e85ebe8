// Package ttlprioritylru implements TTLPriorityLRUMap (spec.md §4.5): a
// prioritylru.Map augmented with a min-heap keyed by expiration time, so
// any entry can be removed from the TTL index in O(log n) and bulk
// expiration sweeps are a simple "pop while root is due" loop.
//
// Per the design note in spec.md §9, the heap and the priority/LRU map
// stay free of cross-pointers: each entry's heap position is tracked by
// key in a side index (internal/bheap's OnMove callback keeps it current),
// the way a generational-arena handle would in a systems language.
package ttlprioritylru

import (
	"time"

	"github.com/yangchenlarkin/monstra/internal/bheap"
	"github.com/yangchenlarkin/monstra/internal/clock"
	"github.com/yangchenlarkin/monstra/prioritylru"
)

type heapItem[K comparable] struct {
	key       K
	expiresAt time.Time
}

// Map is a PriorityLRUMap with TTL expiration. Zero value is not usable;
// construct with New.
type Map[K comparable, V any] struct {
	lru   *prioritylru.Map[K, V]
	heap  *bheap.Heap[heapItem[K]]
	index map[K]int // key -> index into heap, maintained via OnMove

	expiresAt map[K]time.Time
	clock     clock.Source
}

// New constructs an empty Map bounded by capacity, using src for "now".
func New[K comparable, V any](capacity int, src clock.Source) *Map[K, V] {
	m := &Map[K, V]{
		lru:       prioritylru.New[K, V](capacity),
		index:     make(map[K]int),
		expiresAt: make(map[K]time.Time),
		clock:     src,
	}
	less := func(a, b heapItem[K]) bool { return a.expiresAt.Before(b.expiresAt) }
	onMove := func(item heapItem[K], idx int) {
		if idx < 0 {
			delete(m.index, item.key)
			return
		}
		m.index[item.key] = idx
	}
	m.heap = bheap.New(heapCapacity(capacity), less, onMove)
	return m
}

func heapCapacity(capacity int) int {
	if capacity <= 0 {
		return 0
	}
	return capacity
}

// Capacity returns the configured entry-count bound.
func (m *Map[K, V]) Capacity() int { return m.lru.Capacity() }

// Count returns the number of resident entries.
func (m *Map[K, V]) Count() int { return m.lru.Count() }

// IsFull reports whether the map is at capacity.
func (m *Map[K, V]) IsFull() bool { return m.lru.IsFull() }

// Set inserts or updates k with the given priority and absolute
// expiresAt. A non-finite expiresAt (clock.IsInfinite) means "never
// expires". An expiresAt at or before now is "expired on arrival": the
// call is a no-op that reports v itself as evicted, per spec.md §4.5 —
// this holds whether or not k already exists, so a stale write never
// clobbers a live entry.
//
// Overwriting an existing key always uses the *new* expiresAt
// unconditionally (spec.md §9's resolved open question) and never
// evicts; it keeps the key's existing priority bucket, per
// prioritylru.Map.Set's own overwrite semantics.
func (m *Map[K, V]) Set(k K, v V, priority float64, expiresAt time.Time) (evictedKey K, evictedValue V, evicted bool) {
	now := m.clock.Now()
	finite := !clock.IsInfinite(expiresAt)
	if finite && !expiresAt.After(now) {
		return k, v, true
	}

	_, existed := m.lru.Peek(k)

	ek, ev, wasEvicted := m.lru.Set(k, v, priority)

	// capacity <= 0 (or any other "rejected outright" case): the incoming
	// entry itself bounced back as evicted and never became resident —
	// there is nothing to track in the TTL heap.
	if !existed && wasEvicted && ek == k {
		return ek, ev, wasEvicted
	}

	if wasEvicted {
		m.forgetExpiry(ek)
	}
	if existed {
		m.forgetExpiry(k)
	}
	if finite {
		m.heap.Insert(heapItem[K]{key: k, expiresAt: expiresAt})
		m.expiresAt[k] = expiresAt
	}

	return ek, ev, wasEvicted
}

// Get returns k's value if present and unexpired, promoting it to MRU
// within its priority bucket. An expired entry is evicted lazily and
// reported as a miss.
func (m *Map[K, V]) Get(k K) (V, bool) {
	var zero V
	if m.expiredLocked(k) {
		m.evictKey(k)
		return zero, false
	}
	return m.lru.Get(k)
}

// Remove deletes k if present, in O(log n) via the tracked heap index.
func (m *Map[K, V]) Remove(k K) (V, bool) {
	v, ok := m.lru.Remove(k)
	if !ok {
		return v, false
	}
	m.forgetExpiry(k)
	return v, true
}

// RemoveLRU evicts the global LRU entry of the lowest non-empty priority
// bucket, the same victim rule prioritylru.Map.RemoveLRU uses.
func (m *Map[K, V]) RemoveLRU() (K, V, bool) {
	k, v, ok := m.lru.RemoveLRU()
	if ok {
		m.forgetExpiry(k)
	}
	return k, v, ok
}

// Removed describes one entry swept by RemoveExpiredEntries.
type Removed[K comparable, V any] struct {
	Key   K
	Value V
}

// RemoveExpiredEntries repeatedly pops the heap while its root has
// expiresAt <= now, evicting each from the underlying map.
func (m *Map[K, V]) RemoveExpiredEntries() []Removed[K, V] {
	now := m.clock.Now()
	var out []Removed[K, V]
	for {
		top, ok := m.heap.Peek()
		if !ok || top.expiresAt.After(now) {
			break
		}
		m.heap.RemoveTop()
		delete(m.expiresAt, top.key)
		if v, ok := m.lru.Remove(top.key); ok {
			out = append(out, Removed[K, V]{Key: top.key, Value: v})
		}
	}
	return out
}

func (m *Map[K, V]) expiredLocked(k K) bool {
	exp, ok := m.expiresAt[k]
	if !ok {
		return false
	}
	return !exp.After(m.clock.Now())
}

func (m *Map[K, V]) evictKey(k K) {
	m.lru.Remove(k)
	m.forgetExpiry(k)
}

func (m *Map[K, V]) forgetExpiry(k K) {
	if idx, ok := m.index[k]; ok {
		m.heap.RemoveAt(idx)
	}
	delete(m.expiresAt, k)
}
