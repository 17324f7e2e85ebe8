// Package prioritylru implements PriorityLRUMap (spec.md §4.4): a map from
// K to V tagged with a priority, partitioned into per-priority buckets each
// kept in MRU-to-LRU order, evicting from the lowest-priority, least
// recently used slot when the map is full.
//
// This generalizes the fixed, single-bucket MRU/LRU list the teacher keeps
// directly on its shard (cache/shard.go's insertFront/moveToFront/back) and
// the two-named-queue bookkeeping in policy/twoq/twoq.go (an A1in list plus
// a ghost list, each with its own membership index) into an arbitrary
// number of dynamically created/destroyed priority buckets.
package prioritylru

import (
	"sort"

	"github.com/yangchenlarkin/monstra/internal/dlist"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

type bucket[K comparable, V any] struct {
	priority float64
	list     *dlist.List[entry[K, V]]
}

// Map is a priority-bucketed, LRU-ordered map. Zero value is not usable;
// construct with New.
type Map[K comparable, V any] struct {
	capacity int
	count    int

	// buckets is kept sorted ascending by priority; empty buckets are
	// removed so eviction always starts scanning from buckets[0].
	buckets []*bucket[K, V]

	index    map[K]*dlist.Node[entry[K, V]]
	bucketOf map[K]*bucket[K, V]
}

// New constructs an empty Map bounded by capacity. A capacity <= 0 means
// "accept no entries": every Set is an immediate eviction of the incoming
// value, matching spec.md §3's cache-wide invariant.
func New[K comparable, V any](capacity int) *Map[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Map[K, V]{
		capacity: capacity,
		index:    make(map[K]*dlist.Node[entry[K, V]]),
		bucketOf: make(map[K]*bucket[K, V]),
	}
}

// Capacity returns the configured entry-count bound.
func (m *Map[K, V]) Capacity() int { return m.capacity }

// Count returns the number of resident entries.
func (m *Map[K, V]) Count() int { return m.count }

// IsFull reports whether Count() has reached Capacity().
func (m *Map[K, V]) IsFull() bool { return m.count >= m.capacity }

// Set inserts or updates k. If k already exists, its value and MRU
// position are updated in place at its *current* priority — per spec.md
// §9's resolved open question, Set never re-prioritizes an existing key,
// and overwriting never evicts. If k is new and the map is full, the LRU
// entry of the lowest non-empty priority bucket is evicted first; evicted
// is true only in that case, or when capacity is 0 (the incoming value
// itself is reported evicted).
func (m *Map[K, V]) Set(k K, v V, priority float64) (evictedKey K, evictedValue V, evicted bool) {
	if n, ok := m.index[k]; ok {
		b := m.bucketOf[k]
		n.SetElement(entry[K, V]{key: k, value: v})
		b.list.MoveToFront(n)
		return evictedKey, evictedValue, false
	}

	if m.capacity <= 0 {
		return k, v, true
	}

	if m.count >= m.capacity {
		ek, ev, ok := m.removeLowestLRU()
		if ok {
			evictedKey, evictedValue, evicted = ek, ev, true
		}
	}

	b := m.bucketFor(priority)
	n, _ := b.list.EnqueueFront(entry[K, V]{key: k, value: v})
	m.index[k] = n
	m.bucketOf[k] = b
	m.count++
	return evictedKey, evictedValue, evicted
}

// Get returns k's value and moves it to MRU within its priority bucket.
func (m *Map[K, V]) Get(k K) (V, bool) {
	var zero V
	n, ok := m.index[k]
	if !ok {
		return zero, false
	}
	m.bucketOf[k].list.MoveToFront(n)
	return n.Element().value, true
}

// Peek returns k's value without affecting LRU order.
func (m *Map[K, V]) Peek(k K) (V, bool) {
	var zero V
	n, ok := m.index[k]
	if !ok {
		return zero, false
	}
	return n.Element().value, true
}

// Remove deletes k if present and returns its value.
func (m *Map[K, V]) Remove(k K) (V, bool) {
	var zero V
	n, ok := m.index[k]
	if !ok {
		return zero, false
	}
	b := m.bucketOf[k]
	v := n.Element().value
	b.list.Remove(n)
	delete(m.index, k)
	delete(m.bucketOf, k)
	m.count--
	m.dropIfEmpty(b)
	return v, true
}

// RemoveLRU removes and returns the global LRU entry of the lowest
// non-empty priority bucket ("LRU-of-lowest-priority", see spec.md
// GLOSSARY).
func (m *Map[K, V]) RemoveLRU() (K, V, bool) {
	return m.removeLowestLRU()
}

func (m *Map[K, V]) removeLowestLRU() (K, V, bool) {
	var zeroK K
	var zeroV V
	if len(m.buckets) == 0 {
		return zeroK, zeroV, false
	}
	b := m.buckets[0]
	n := b.list.Back()
	if n == nil {
		return zeroK, zeroV, false
	}
	e := n.Element()
	b.list.Remove(n)
	delete(m.index, e.key)
	delete(m.bucketOf, e.key)
	m.count--
	m.dropIfEmpty(b)
	return e.key, e.value, true
}

// bucketFor returns the bucket for priority, creating and inserting it in
// sorted order if it doesn't yet exist.
func (m *Map[K, V]) bucketFor(priority float64) *bucket[K, V] {
	i := sort.Search(len(m.buckets), func(i int) bool { return m.buckets[i].priority >= priority })
	if i < len(m.buckets) && m.buckets[i].priority == priority {
		return m.buckets[i]
	}
	b := &bucket[K, V]{priority: priority, list: dlist.New[entry[K, V]](maxInt)}
	m.buckets = append(m.buckets, nil)
	copy(m.buckets[i+1:], m.buckets[i:])
	m.buckets[i] = b
	return b
}

func (m *Map[K, V]) dropIfEmpty(b *bucket[K, V]) {
	if b.list.Len() != 0 {
		return
	}
	i := sort.Search(len(m.buckets), func(i int) bool { return m.buckets[i].priority >= b.priority })
	if i < len(m.buckets) && m.buckets[i] == b {
		m.buckets = append(m.buckets[:i], m.buckets[i+1:]...)
	}
}

// maxInt bounds the per-bucket list "capacity": buckets are logically
// unbounded (the Map enforces the overall capacity), the dlist primitive
// just requires some positive bound.
const maxInt = int(^uint(0) >> 1)
