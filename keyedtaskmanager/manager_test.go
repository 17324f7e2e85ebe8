package keyedtaskmanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yangchenlarkin/monstra/cacheengine"
	"github.com/yangchenlarkin/monstra/internal/clock"
	"github.com/yangchenlarkin/monstra/retry"
	"github.com/yangchenlarkin/monstra/taskerr"
)

func syncQueue(f func()) { f() }

// newSyncManager wires both queues to run inline and installs a fake clock,
// the same determinism trick singleflighttask's tests use.
func newSyncManager[V any](t *testing.T, cfg Config[int, V]) (*Manager[int, V], *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Unix(0, 0))
	cfg.Clock = fc
	cfg.ExecutionQueue = syncQueue
	cfg.CallbackQueue = syncQueue
	cfg.Timer = func(d time.Duration, fn func()) func() {
		fn()
		return func() {}
	}
	if cfg.Cache.Clock == nil {
		cfg.Cache.Clock = fc
	}
	return New(cfg), fc
}

func syncMono(f func(k int) ProviderResult[string]) DataProvider[int, string] {
	return DataProvider[int, string]{SyncMono: f}
}

func TestManager_FetchMissThenCached(t *testing.T) {
	var calls int32
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning: 1,
		DataProvider: syncMono(func(k int) ProviderResult[string] {
			atomic.AddInt32(&calls, 1)
			return ProviderSuccess(Some("v1"))
		}),
	})

	var got Result[string]
	m.Fetch(1, func(r Result[string]) { got = r })
	require.True(t, got.OK())
	require.False(t, got.Value.Absent)
	require.Equal(t, "v1", got.Value.Value)

	// Second fetch should hit the cache, not the provider.
	var got2 Result[string]
	m.Fetch(1, func(r Result[string]) { got2 = r })
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "second fetch should be cached, not re-invoke the provider")
	require.True(t, got2.OK())
	require.Equal(t, "v1", got2.Value.Value)
}

func TestManager_AbsentHitShortCircuits(t *testing.T) {
	var calls int32
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning: 1,
		DataProvider: syncMono(func(k int) ProviderResult[string] {
			atomic.AddInt32(&calls, 1)
			return ProviderSuccess(None[string]())
		}),
	})

	var got Result[string]
	m.Fetch(7, func(r Result[string]) { got = r })
	if !got.OK() || !got.Value.Absent {
		t.Fatalf("got %+v, want Success(None)", got)
	}

	m.Fetch(7, func(r Result[string]) {})
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("provider called %d times, want 1", calls)
	}
}

func TestManager_InvalidKeyRejected(t *testing.T) {
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning: 1,
		Cache: cacheengine.Options[int, string]{
			KeyValidator: func(k int) bool { return k > 0 },
		},
		DataProvider: syncMono(func(k int) ProviderResult[string] {
			return ProviderSuccess(Some("v"))
		}),
	})

	var got Result[string]
	m.Fetch(-1, func(r Result[string]) { got = r })
	if !taskerr.Is(got.Err, taskerr.KindInvalidKey) {
		t.Fatalf("got %v, want invalidKey", got.Err)
	}
}

func TestManager_CoalescesConcurrentFetchesForSameKey(t *testing.T) {
	var calls int32
	ready := make(chan struct{})
	release := make(chan struct{})

	m := New(Config[int, string]{
		MaxRunning: 1,
		DataProvider: DataProvider[int, string]{
			SyncMono: func(k int) ProviderResult[string] {
				if atomic.AddInt32(&calls, 1) == 1 {
					close(ready)
					<-release
				}
				return ProviderSuccess(Some("v"))
			},
		},
	})

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		m.Fetch(1, func(r Result[string]) { wg.Done() })
	}
	<-ready
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("provider ran %d times, want 1", got)
	}
}

func TestManager_PendingOverflowReportsOverflow(t *testing.T) {
	release := make(chan struct{})
	m := New(Config[int, string]{
		MaxRunning: 1,
		MaxPending: 1,
		DataProvider: DataProvider[int, string]{
			SyncMono: func(k int) ProviderResult[string] {
				<-release
				return ProviderSuccess(Some("v"))
			},
		},
	})

	// key 1 occupies the single running slot.
	m.Fetch(1, func(Result[string]) {})
	// key 2 fills the single pending slot.
	m.Fetch(2, func(Result[string]) {})
	// key 3 has nowhere to go.
	var got Result[string]
	var wg sync.WaitGroup
	wg.Add(1)
	m.Fetch(3, func(r Result[string]) { got = r; wg.Done() })
	wg.Wait()

	if !taskerr.Is(got.Err, taskerr.KindOverflow) {
		t.Fatalf("got %v, want overflow", got.Err)
	}
	close(release)
}

func TestManager_FIFOPromotionOrder(t *testing.T) {
	ready := make(chan struct{})
	release := make(chan struct{})
	var order []int
	var mu sync.Mutex

	m := New(Config[int, string]{
		MaxRunning:       1,
		MaxPending:       2,
		PriorityStrategy: FIFO,
		ExecutionQueue:   syncQueue,
		CallbackQueue:    syncQueue,
		DataProvider: DataProvider[int, string]{
			SyncMono: func(k int) ProviderResult[string] {
				mu.Lock()
				order = append(order, k)
				mu.Unlock()
				if k == 1 {
					close(ready)
					<-release
				}
				return ProviderSuccess(Some("v"))
			},
		},
	})

	done := make(chan struct{})
	go func() {
		m.Fetch(1, func(Result[string]) {})
		close(done)
	}()
	<-ready // key 1 now occupies the running slot and is blocked in-provider.
	m.Fetch(2, func(Result[string]) {})
	m.Fetch(3, func(Result[string]) {})
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("got order %v, want [1 2 3]", order)
	}
}

func TestManager_LIFOPromotionOrder(t *testing.T) {
	ready := make(chan struct{})
	release := make(chan struct{})
	var order []int
	var mu sync.Mutex

	m := New(Config[int, string]{
		MaxRunning:       1,
		MaxPending:       2,
		PriorityStrategy: LIFO,
		ExecutionQueue:   syncQueue,
		CallbackQueue:    syncQueue,
		DataProvider: DataProvider[int, string]{
			SyncMono: func(k int) ProviderResult[string] {
				mu.Lock()
				order = append(order, k)
				mu.Unlock()
				if k == 1 {
					close(ready)
					<-release
				}
				return ProviderSuccess(Some("v"))
			},
		},
	})

	done := make(chan struct{})
	go func() {
		m.Fetch(1, func(Result[string]) {})
		close(done)
	}()
	<-ready // key 1 now occupies the running slot and is blocked in-provider.
	m.Fetch(2, func(Result[string]) {})
	m.Fetch(3, func(Result[string]) {})
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	// key 1 runs first (already promoted before 2/3 arrived); among the
	// pending keys, LIFO promotes the most recently enqueued (3) first.
	if len(order) != 3 || order[0] != 1 || order[1] != 3 || order[2] != 2 {
		t.Fatalf("got order %v, want [1 3 2]", order)
	}
}

func TestManager_RetryThenSucceeds(t *testing.T) {
	var calls int32
	boom := errors.New("boom")
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning:  1,
		RetryPolicy: retry.Count(2, retry.Fixed(0)),
		DataProvider: syncMono(func(k int) ProviderResult[string] {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return ProviderFailure[string](boom)
			}
			return ProviderSuccess(Some("v"))
		}),
	})

	var got Result[string]
	m.Fetch(1, func(r Result[string]) { got = r })
	if !got.OK() || got.Value.Value != "v" {
		t.Fatalf("got %+v, want Success(v)", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("got %d attempts, want 3", calls)
	}
}

func TestManager_RetryExhaustionDeliversRetryExhausted(t *testing.T) {
	var calls int32
	boom := errors.New("boom")
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning:  1,
		RetryPolicy: retry.Count(1, retry.Fixed(0)),
		DataProvider: syncMono(func(k int) ProviderResult[string] {
			atomic.AddInt32(&calls, 1)
			return ProviderFailure[string](boom)
		}),
	})

	var got Result[string]
	m.Fetch(1, func(r Result[string]) { got = r })
	if !taskerr.Is(got.Err, taskerr.KindRetryExhausted) {
		t.Fatalf("got %v, want retryExhausted", got.Err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("got %d attempts, want 2 (1 initial + 1 retry)", calls)
	}
}

func TestManager_BatchFanInWithOverlappingKeys(t *testing.T) {
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning: 2,
		MaxPending: 10,
		DataProvider: DataProvider[int, string]{
			MaxBatchSize: 2,
			SyncBatch: func(keys []int) map[int]ProviderResult[string] {
				result := make(map[int]ProviderResult[string], len(keys))
				for _, k := range keys {
					if k == 99 { // "bad" key: deliberately omitted from the map.
						continue
					}
					result[k] = ProviderSuccess(Some("v"))
				}
				return result
			},
		},
	})

	keys := []int{1, 2, 99}
	var wg sync.WaitGroup
	results := make(map[int]Result[string])
	var mu sync.Mutex
	for _, k := range keys {
		for c := 0; c < 3; c++ { // three overlapping callers per key
			wg.Add(1)
			k := k
			m.Fetch(k, func(r Result[string]) {
				mu.Lock()
				results[k] = r
				mu.Unlock()
				wg.Done()
			})
		}
	}
	wg.Wait()

	if !results[1].OK() || results[1].Value.Value != "v" {
		t.Fatalf("key 1: got %+v", results[1])
	}
	if !results[2].OK() || results[2].Value.Value != "v" {
		t.Fatalf("key 2: got %+v", results[2])
	}
	if !results[99].OK() || !results[99].Value.Absent {
		t.Fatalf("key 99 (omitted from batch result): got %+v, want Success(None)", results[99])
	}
}

func TestManager_AsyncFetchManyResolvesAllKeys(t *testing.T) {
	m, _ := newSyncManager[string](t, Config[int, string]{
		MaxRunning: 3,
		DataProvider: syncMono(func(k int) ProviderResult[string] {
			return ProviderSuccess(Some("v"))
		}),
	})

	results, err := m.AsyncFetchMany(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for k, r := range results {
		if !r.OK() || r.Value.Value != "v" {
			t.Fatalf("key %d: got %+v", k, r)
		}
	}
}
