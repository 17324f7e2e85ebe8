// Package bheap implements a fixed-capacity binary heap with index-tracking
// callbacks, so an external owner (ttlprioritylru) can locate and remove any
// element in O(log n) without the heap and its owner maintaining separate,
// cyclically-referencing pointers into each other.
//
// The teacher repo has no heap of its own; this follows the "stable handle"
// design note in spec.md §9 instead of the event-callback-from-heap-into-LRU
// scheme the original Swift implementation used: items carry an opaque,
// heap-assigned index and ttlprioritylru stores that index in a side map
// keyed by entry key, rather than the heap and the LRU map holding pointers to each
// other's internals.
package bheap

// Less reports whether a sorts above b (for a min-heap, a < b; for a
// max-heap, a > b). The comparator owns the "more top / equal / more
// bottom" semantics spec.md describes.
type Less[T any] func(a, b T) bool

// Heap is a capacity-bounded binary heap over T, array-backed, with an
// OnMove callback fired whenever an item's position changes (insert,
// remove, or sift) so callers can keep a side index current.
type Heap[T any] struct {
	items    []T
	less     Less[T]
	capacity int
	onMove   func(item T, index int)
}

// New constructs an empty Heap bounded by capacity, ordered by less.
// onMove, if non-nil, is invoked every time an item's index changes,
// including on initial insertion (index >= 0) and on removal (index == -1).
func New[T any](capacity int, less Less[T], onMove func(item T, index int)) *Heap[T] {
	return &Heap[T]{
		items:    make([]T, 0, max(capacity, 0)),
		less:     less,
		capacity: capacity,
		onMove:   onMove,
	}
}

// Len returns the number of resident items.
func (h *Heap[T]) Len() int { return len(h.items) }

// Capacity returns the configured bound.
func (h *Heap[T]) Capacity() int { return h.capacity }

// Peek returns the top item without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	return h.items[0], true
}

// At returns the item currently stored at index, or false if the index is
// invalid. Negative indices always report false.
func (h *Heap[T]) At(index int) (T, bool) {
	var zero T
	if index < 0 || index >= len(h.items) {
		return zero, false
	}
	return h.items[index], true
}

// Insert adds item to the heap. If the heap is full, item is rejected and
// returned as "not admitted" (the bool is false) — callers who want
// displacement semantics should use InsertForce.
func (h *Heap[T]) Insert(item T) (admitted bool) {
	if h.capacity > 0 && len(h.items) >= h.capacity {
		return false
	}
	h.items = append(h.items, item)
	idx := len(h.items) - 1
	h.notify(item, idx)
	h.siftUp(idx)
	return true
}

// InsertForce adds item to the heap, displacing the top element if the
// heap is full and item sorts below the current top (per less). If the
// heap is full and item would sort above or equal to the top, it is
// rejected and returned as displaced (no-op). Returns the element that was
// bumped out, if any.
func (h *Heap[T]) InsertForce(item T) (displaced *T) {
	if h.capacity <= 0 {
		v := item
		return &v
	}
	if len(h.items) < h.capacity {
		h.Insert(item)
		return nil
	}
	top := h.items[0]
	if !h.less(top, item) {
		// item sorts above (or equal to) top: reject item.
		v := item
		return &v
	}
	h.items[0] = item
	h.notify(top, -1)
	h.notify(item, 0)
	h.siftDown(0)
	return &top
}

// RemoveTop removes and returns the top element.
func (h *Heap[T]) RemoveTop() (T, bool) {
	return h.RemoveAt(0)
}

// RemoveAt removes and returns the element currently at index. Invalid
// (including negative) indices return false with no effect.
func (h *Heap[T]) RemoveAt(index int) (T, bool) {
	var zero T
	n := len(h.items)
	if index < 0 || index >= n {
		return zero, false
	}
	removed := h.items[index]
	last := n - 1
	h.swap(index, last)
	h.items = h.items[:last]
	h.notify(removed, -1)

	if index < last {
		h.siftDown(index)
		h.siftUp(index)
	}
	return removed, true
}

func (h *Heap[T]) notify(item T, index int) {
	if h.onMove != nil {
		h.onMove(item, index)
	}
}

func (h *Heap[T]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.notify(h.items[i], i)
	h.notify(h.items[j], j)
}

func (h *Heap[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.items[i], h.items[parent]) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *Heap[T]) siftDown(i int) {
	n := len(h.items)
	for {
		l, r := 2*i+1, 2*i+2
		smallest := i
		if l < n && h.less(h.items[l], h.items[smallest]) {
			smallest = l
		}
		if r < n && h.less(h.items[r], h.items[smallest]) {
			smallest = r
		}
		if smallest == i {
			break
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
