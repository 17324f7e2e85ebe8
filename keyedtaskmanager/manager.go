// Package keyedtaskmanager implements KeyedTaskManager (spec.md §4.9): the
// multi-key generalization of singleflighttask — a bounded pending queue, a
// bounded running set, a FIFO/LIFO promotion strategy, retry, and batched
// data-provider fan-in, all backed by a cacheengine.Engine for result
// caching.
//
// Grounded on the teacher's cache.Cache.GetOrLoad (cache/cache.go): a
// cache-first lookup that falls through to a singleflight-coalesced load on
// miss. Manager widens that single always-there slot into N slots drawn
// from a bounded deque, the way GabrielNunesIT/go-libs/workerpool.Pool
// widens "one worker" into "N fixed workers draining one channel" — here
// it's "N key-slots draining a priority-ordered deque" instead of a fixed
// worker count draining a plain queue.
package keyedtaskmanager

import (
	"context"
	"sync"

	"github.com/yangchenlarkin/monstra/cacheengine"
	"github.com/yangchenlarkin/monstra/retry"
	"github.com/yangchenlarkin/monstra/taskerr"
	"golang.org/x/sync/errgroup"
)

type waiterEntry[V any] struct {
	fn       func(Result[V])
	canceled bool
}

// Manager is one KeyedTaskManager instance.
type Manager[K comparable, V any] struct {
	cfg   Config[K, V]
	cache *cacheengine.Engine[K, V]

	mu             sync.Mutex
	pendingOrder   []K
	pendingWaiters map[K][]*waiterEntry[V]
	running        map[K][]*waiterEntry[V]
	runningRetry   map[K]retry.Policy
}

// New constructs a Manager from cfg.
func New[K comparable, V any](cfg Config[K, V]) *Manager[K, V] {
	o := cfg.withDefaults()
	if o.Cache.Clock == nil {
		o.Cache.Clock = o.Clock
	}
	return &Manager[K, V]{
		cfg:            o,
		cache:          cacheengine.New(o.Cache, nil),
		pendingWaiters: make(map[K][]*waiterEntry[V]),
		running:        make(map[K][]*waiterEntry[V]),
		runningRetry:   make(map[K]retry.Policy),
	}
}

// Fetch resolves k: a cache hit delivers immediately; a miss coalesces
// onto an in-flight attempt, joins the pending queue, runs immediately if
// a slot is free, or fails with taskerr.Overflow if both are full.
// completion is always dispatched on CallbackQueue, never synchronously,
// mirroring singleflighttask's uniform-delivery rule.
func (m *Manager[K, V]) Fetch(k K, completion func(Result[V])) {
	switch r := m.cache.Get(k); r.Outcome {
	case cacheengine.Invalid:
		m.deliverOne(completion, Failure[V](taskerr.InvalidKey()))
		return
	case cacheengine.ValueHit:
		m.deliverOne(completion, Success(Some(r.Value)))
		return
	case cacheengine.AbsentHit:
		m.deliverOne(completion, Success(None[V]()))
		return
	}

	m.mu.Lock()
	entry := &waiterEntry[V]{fn: completion}

	if waiters, ok := m.running[k]; ok {
		m.running[k] = append(waiters, entry)
		m.cfg.Metrics.Coalesced()
		m.mu.Unlock()
		return
	}

	if len(m.running) < m.cfg.MaxRunning {
		m.running[k] = []*waiterEntry[V]{entry}
		m.runningRetry[k] = m.cfg.RetryPolicy
		m.reportGaugesLocked()
		m.mu.Unlock()
		m.dispatchProvider([]K{k})
		return
	}

	if waiters, ok := m.pendingWaiters[k]; ok {
		m.pendingWaiters[k] = append(waiters, entry)
		m.mu.Unlock()
		return
	}

	if len(m.pendingOrder) < m.cfg.MaxPending {
		m.pendingOrder = append(m.pendingOrder, k)
		m.pendingWaiters[k] = []*waiterEntry[V]{entry}
		m.reportGaugesLocked()
		m.mu.Unlock()
		return
	}

	m.mu.Unlock()
	m.cfg.Metrics.Overflow()
	m.deliverOne(completion, Failure[V](taskerr.Overflow()))
}

// FetchMany resolves each key independently, invoking perKey once per key
// in no particular cross-key order.
func (m *Manager[K, V]) FetchMany(keys []K, perKey func(K, Result[V])) {
	for _, k := range keys {
		k := k
		m.Fetch(k, func(r Result[V]) { perKey(k, r) })
	}
}

// FetchBatch resolves every key and invokes completion exactly once, after
// all keys have reached a terminal state. Map iteration order (and thus
// the order keys become terminal) is not specified.
func (m *Manager[K, V]) FetchBatch(keys []K, completion func(map[K]Result[V])) {
	if len(keys) == 0 {
		completion(map[K]Result[V]{})
		return
	}
	var mu sync.Mutex
	results := make(map[K]Result[V], len(keys))
	remaining := len(keys)
	for _, k := range keys {
		k := k
		m.Fetch(k, func(r Result[V]) {
			mu.Lock()
			results[k] = r
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				completion(results)
			}
		})
	}
}

// AsyncFetch blocks until k resolves.
func (m *Manager[K, V]) AsyncFetch(ctx context.Context, k K) (Result[V], error) {
	ch := make(chan Result[V], 1)
	m.Fetch(k, func(r Result[V]) { ch <- r })
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		var zero Result[V]
		return zero, ctx.Err()
	}
}

// AsyncFetchMany resolves every key concurrently via errgroup, returning
// as soon as ctx is done or every key has terminated.
func (m *Manager[K, V]) AsyncFetchMany(ctx context.Context, keys []K) (map[K]Result[V], error) {
	results := make(map[K]Result[V], len(keys))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			r, err := m.AsyncFetch(ctx, k)
			if err != nil {
				return err
			}
			mu.Lock()
			results[k] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (m *Manager[K, V]) deliverOne(completion func(Result[V]), r Result[V]) {
	m.cfg.CallbackQueue(func() { completion(r) })
}

func (m *Manager[K, V]) reportGaugesLocked() {
	m.cfg.Metrics.Pending(len(m.pendingOrder))
	m.cfg.Metrics.Running(len(m.running))
}

// promoteLocked moves pending keys into running, per cfg.PriorityStrategy,
// and returns them so the caller can dispatch the provider outside the
// lock. It takes one key per free running slot; for a batch provider it
// takes at most MaxBatchSize keys, i.e. one batch invocation, even when
// more slots are free. Caller must hold m.mu.
func (m *Manager[K, V]) promoteLocked() []K {
	capacity := m.cfg.MaxRunning - len(m.running)
	if capacity <= 0 || len(m.pendingOrder) == 0 {
		return nil
	}

	batchSize := capacity
	if m.cfg.DataProvider.isBatch() {
		if bs := m.cfg.DataProvider.maxBatchSize(); bs < batchSize {
			batchSize = bs
		}
	}
	if batchSize > len(m.pendingOrder) {
		batchSize = len(m.pendingOrder)
	}

	keys := m.popPendingLocked(batchSize)
	for _, k := range keys {
		m.running[k] = m.pendingWaiters[k]
		delete(m.pendingWaiters, k)
		m.runningRetry[k] = m.cfg.RetryPolicy
	}
	m.reportGaugesLocked()
	return keys
}

// popPendingLocked removes and returns n keys from the front of the queue
// (FIFO) or the back (LIFO). Caller must hold m.mu.
func (m *Manager[K, V]) popPendingLocked(n int) []K {
	if m.cfg.PriorityStrategy == LIFO {
		start := len(m.pendingOrder) - n
		keys := make([]K, n)
		for i := 0; i < n; i++ {
			keys[i] = m.pendingOrder[len(m.pendingOrder)-1-i]
		}
		m.pendingOrder = m.pendingOrder[:start]
		return keys
	}
	keys := append([]K(nil), m.pendingOrder[:n]...)
	m.pendingOrder = append([]K(nil), m.pendingOrder[n:]...)
	return keys
}

// dispatchProvider invokes the configured DataProvider for keys, grouping
// them into one call if it's a batch provider, or launching one call per
// key otherwise. keys is typically a just-promoted batch, but a single-key
// retry reuses this too.
func (m *Manager[K, V]) dispatchProvider(keys []K) {
	if len(keys) == 0 {
		return
	}

	if m.cfg.DataProvider.isBatch() {
		m.cfg.Metrics.Execution()
		m.cfg.ExecutionQueue(func() {
			if m.cfg.DataProvider.SyncBatch != nil {
				m.completeBatch(keys, m.cfg.DataProvider.SyncBatch(keys))
				return
			}
			m.cfg.DataProvider.AsyncBatch(keys, func(result map[K]ProviderResult[V]) {
				m.completeBatch(keys, result)
			})
		})
		return
	}

	for _, k := range keys {
		k := k
		m.cfg.Metrics.Execution()
		m.cfg.ExecutionQueue(func() {
			if m.cfg.DataProvider.SyncMono != nil {
				m.completeOne(k, m.cfg.DataProvider.SyncMono(k))
				return
			}
			m.cfg.DataProvider.AsyncMono(k, func(r ProviderResult[V]) { m.completeOne(k, r) })
		})
	}
}

func (m *Manager[K, V]) completeBatch(keys []K, result map[K]ProviderResult[V]) {
	for _, k := range keys {
		r, ok := result[k]
		if !ok {
			r = ProviderSuccess[V](None[V]())
		}
		m.completeOne(k, r)
	}
}

// completeOne records one key's provider outcome: on success, caches it
// and frees the running slot; on failure, consults the key's retry policy
// and either schedules another attempt (the key stays in running) or
// delivers retryExhausted and frees the slot. Freeing a slot always tries
// to promote the next pending batch, and the freed waiters plus any newly
// dispatched provider calls happen outside the lock.
func (m *Manager[K, V]) completeOne(k K, r ProviderResult[V]) {
	m.mu.Lock()

	if r.OK() {
		waiters := m.running[k]
		delete(m.running, k)
		delete(m.runningRetry, k)
		if r.Value.Absent {
			m.cache.SetAbsent(k, 0, cacheengine.UseDefault)
		} else {
			m.cache.Set(k, r.Value.Value, 0, cacheengine.UseDefault)
		}
		promoted := m.promoteLocked()
		m.reportGaugesLocked()
		m.mu.Unlock()

		m.deliverAll(waiters, Success(r.Value))
		m.dispatchProvider(promoted)
		return
	}

	rp := m.runningRetry[k]
	if rp.ShouldRetry() {
		delay := rp.NextDelay()
		m.runningRetry[k] = rp.Advance()
		m.mu.Unlock()
		m.cfg.Metrics.Retry()
		m.cfg.Timer(delay, func() { m.dispatchProvider([]K{k}) })
		return
	}

	waiters := m.running[k]
	delete(m.running, k)
	delete(m.runningRetry, k)
	promoted := m.promoteLocked()
	m.reportGaugesLocked()
	m.mu.Unlock()

	m.deliverAll(waiters, Failure[V](taskerr.RetryExhausted(r.Err)))
	m.dispatchProvider(promoted)
}

// deliverAll invokes every non-canceled waiter on the callback queue, in
// attach order, from within a single dispatch — the same discipline
// singleflighttask.Task.deliver uses.
func (m *Manager[K, V]) deliverAll(waiters []*waiterEntry[V], r Result[V]) {
	if len(waiters) == 0 {
		return
	}
	m.cfg.CallbackQueue(func() {
		for _, w := range waiters {
			if !w.canceled {
				w.fn(r)
			}
		}
	})
}
