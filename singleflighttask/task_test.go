package singleflighttask

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yangchenlarkin/monstra/internal/clock"
	"github.com/yangchenlarkin/monstra/retry"
	"github.com/yangchenlarkin/monstra/taskerr"
)

// syncQueue runs dispatched work inline, making tests deterministic without
// real goroutine scheduling.
func syncQueue(f func()) { f() }

func newSyncTask(t *testing.T, cfg Config[int]) (*Task[int], *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Unix(0, 0))
	cfg.Clock = fc
	cfg.ExecutionQueue = syncQueue
	cfg.CallbackQueue = syncQueue
	return New(cfg), fc
}

func TestTask_CoalescesConcurrentExecutes(t *testing.T) {
	var calls int32
	ready := make(chan struct{})
	release := make(chan struct{})

	task := New(Config[int]{
		ResultTTL: time.Minute,
		Executor: func(completion func(Result[int])) {
			atomic.AddInt32(&calls, 1)
			close(ready)
			<-release
			completion(Success(42))
		},
	})

	const n = 20
	results := make([]Result[int], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		task.Execute(false, func(r Result[int]) {
			results[i] = r
			wg.Done()
		})
	}
	<-ready
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("executor ran %d times, want 1", got)
	}
	for i, r := range results {
		if !r.OK() || r.Value != 42 {
			t.Fatalf("waiter %d got %+v, want Success(42)", i, r)
		}
	}
}

func TestTask_CachesSuccessUntilTTL(t *testing.T) {
	var calls int32
	task, fc := newSyncTask(t, Config[int]{
		ResultTTL: 5 * time.Second,
		Executor: func(completion func(Result[int])) {
			atomic.AddInt32(&calls, 1)
			completion(Success(1))
		},
	})

	task.Execute(false, func(Result[int]) {})
	task.Execute(false, func(Result[int]) {})
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("executor ran %d times before TTL expiry, want 1", got)
	}

	fc.Advance(6 * time.Second)
	task.Execute(false, func(Result[int]) {})
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("executor ran %d times after TTL expiry, want 2", got)
	}
}

func TestTask_ForceUpdateBypassesCache(t *testing.T) {
	var calls int32
	task, _ := newSyncTask(t, Config[int]{
		ResultTTL: time.Minute,
		Executor: func(completion func(Result[int])) {
			atomic.AddInt32(&calls, 1)
			completion(Success(1))
		},
	})
	task.Execute(false, func(Result[int]) {})
	task.Execute(true, func(Result[int]) {})
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("got %d executions, want 2", got)
	}
}

func TestTask_RetryExhaustionDeliversRetryExhausted(t *testing.T) {
	var calls int32
	boom := errors.New("boom")
	task, _ := newSyncTask(t, Config[int]{
		RetryPolicy: retry.Count(2, retry.Fixed(0)),
		Timer: func(d time.Duration, fn func()) func() {
			fn() // fire immediately; delay semantics covered by retry tests
			return func() {}
		},
		Executor: func(completion func(Result[int])) {
			atomic.AddInt32(&calls, 1)
			completion(Failure[int](boom))
		},
	})

	var final Result[int]
	task.Execute(false, func(r Result[int]) { final = r })

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("got %d attempts, want 3 (1 initial + 2 retries)", got)
	}
	if !taskerr.Is(final.Err, taskerr.KindRetryExhausted) {
		t.Fatalf("got %v, want retryExhausted", final.Err)
	}
}

func TestTask_AsyncExecuteSuccess(t *testing.T) {
	task, _ := newSyncTask(t, Config[int]{
		ResultTTL: time.Minute,
		Executor: func(completion func(Result[int])) { completion(Success(9)) },
	})
	v, err := task.AsyncExecute(context.Background(), false)
	if err != nil || v != 9 {
		t.Fatalf("got (%d, %v), want (9, nil)", v, err)
	}
}

func TestTask_AsyncExecuteCancellationDetachesOnlyCaller(t *testing.T) {
	release := make(chan struct{})
	task := New(Config[int]{
		ResultTTL: time.Minute,
		Executor: func(completion func(Result[int])) {
			<-release
			completion(Success(7))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, err := task.AsyncExecute(ctx, false)
		if !taskerr.Is(err, taskerr.KindCancellation) {
			t.Errorf("got %v, want cancellation", err)
		}
		close(done)
	}()

	var other Result[int]
	var otherWG sync.WaitGroup
	otherWG.Add(1)
	task.Execute(false, func(r Result[int]) { other = r; otherWG.Done() })

	cancel()
	<-done
	close(release)
	otherWG.Wait()

	if !other.OK() || other.Value != 7 {
		t.Fatalf("other waiter got %+v, want Success(7)", other)
	}
}

func TestTask_ClearResultCancelDeliversCancellation(t *testing.T) {
	release := make(chan struct{})
	task := New(Config[int]{
		ResultTTL: time.Minute,
		Executor: func(completion func(Result[int])) {
			<-release
			completion(Success(1))
		},
	})

	var got Result[int]
	var wg sync.WaitGroup
	wg.Add(1)
	task.Execute(false, func(r Result[int]) { got = r; wg.Done() })
	task.ClearResult(Cancel, false)
	wg.Wait()

	if !taskerr.Is(got.Err, taskerr.KindCancellation) {
		t.Fatalf("got %+v, want cancellation", got)
	}
	close(release) // let the abandoned executor finish; must not repanic/deliver
}

func TestTask_ClearResultDropsCachedResult(t *testing.T) {
	var calls int32
	task, _ := newSyncTask(t, Config[int]{
		ResultTTL: time.Minute,
		Executor: func(completion func(Result[int])) {
			atomic.AddInt32(&calls, 1)
			completion(Success(1))
		},
	})
	task.Execute(false, func(Result[int]) {})
	task.ClearResult(AllowComplete, false)
	task.Execute(false, func(Result[int]) {})
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("got %d executions, want 2 (cache cleared)", got)
	}
}
