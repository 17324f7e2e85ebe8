// Package singleflighttask implements SingleFlightTask (spec.md §4.8): a
// single always-present key's worth of coalesced execution, a TTL-cached
// success, and a RetryPolicy-driven continuation on failure.
//
// This generalizes the teacher's internal/singleflight.Group[K,V] (a
// *keyed* group, one call[V] per key) down to the K=unit case — Task[V] is
// what you get from specializing Group to a single in-flight slot, with
// two additions the teacher's drop-and-forget Group doesn't need: a result
// that outlives the call (cached for resultTTL) and a failure path that
// re-enters RUNNING instead of just returning the error to waiters.
package singleflighttask

import (
	"context"
	"sync"
	"time"

	"github.com/yangchenlarkin/monstra/internal/clock"
	"github.com/yangchenlarkin/monstra/metrics"
	"github.com/yangchenlarkin/monstra/monstralog"
	"github.com/yangchenlarkin/monstra/retry"
	"github.com/yangchenlarkin/monstra/taskerr"
)

type state int

const (
	stateIdle state = iota
	stateRunning
)

// OngoingStrategy controls what ClearResult does to an in-flight attempt.
type OngoingStrategy int

const (
	// AllowComplete lets a running attempt finish normally; only the
	// cached result is discarded.
	AllowComplete OngoingStrategy = iota
	// Cancel detaches every current waiter immediately, delivering
	// taskerr.Cancellation to each; the executor itself is not stopped
	// (it must notice abandonment on its own and may still call
	// completion, which is then discarded).
	Cancel
)

// Config configures a Task. Executor is the only required field.
type Config[V any] struct {
	// ResultTTL bounds how long a cached success stays servable without
	// re-running Executor. <= 0 means the result is never reused (every
	// Execute call re-runs, as if nothing were cached).
	ResultTTL time.Duration
	// RetryPolicy governs continuation after a failed attempt.
	RetryPolicy retry.Policy
	// Executor performs the work; it must call completion exactly once,
	// synchronously or asynchronously.
	Executor func(completion func(Result[V]))

	// ExecutionQueue dispatches the executor. Default: a new goroutine.
	ExecutionQueue func(func())
	// CallbackQueue dispatches waiter delivery. Default: a new goroutine.
	// Waiters belonging to the same delivery batch are always invoked in
	// attach order from within a single CallbackQueue dispatch, so a
	// CallbackQueue that itself runs units concurrently (e.g. a worker
	// pool) still preserves per-batch ordering.
	CallbackQueue func(func())
	// Timer schedules fn to run after d and returns a canceler; used for
	// retry delays. Default wraps time.AfterFunc. Tests inject a fake to
	// avoid real sleeps.
	Timer func(d time.Duration, fn func()) (cancel func())

	Clock   clock.Source
	Metrics metrics.Tasks
	Logger  monstralog.Logger
}

func (c *Config[V]) withDefaults() Config[V] {
	out := *c
	if out.ExecutionQueue == nil {
		out.ExecutionQueue = func(f func()) { go f() }
	}
	if out.CallbackQueue == nil {
		out.CallbackQueue = func(f func()) { go f() }
	}
	if out.Timer == nil {
		out.Timer = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	if out.Clock == nil {
		out.Clock = clock.System{}
	}
	if out.Metrics == nil {
		out.Metrics = metrics.NoopTasks{}
	}
	if out.Logger == nil {
		out.Logger = monstralog.Noop{}
	}
	return out
}

// waiterSlot is one registered completion. Canceling sets canceled so
// delivery skips it, instead of shrinking the waiters slice mid-iteration —
// spec.md §9's "swap the slot for a sentinel rather than shrink mid-iteration."
type waiterSlot[V any] struct {
	fn       func(Result[V])
	canceled bool
}

// Task is one SingleFlightTask instance (spec.md §4.8).
type Task[V any] struct {
	cfg Config[V]

	mu             sync.Mutex
	state          state
	waiters        []*waiterSlot[V]
	currentRetry   retry.Policy
	cancelTimer    func()
	restartPending bool
	// generation increments every time a fresh executor dispatch starts.
	// A completion (possibly from a retry timer, possibly from the
	// executor itself) that fires after ClearResult(Cancel) abandoned its
	// attempt carries a stale generation and is discarded on arrival,
	// satisfying spec.md §5's "completion ... is discarded if the attempt
	// was canceled."
	generation uint64

	hasCached    bool
	cachedResult Result[V]
	cachedUntil  time.Time
}

// New constructs a Task from cfg.
func New[V any](cfg Config[V]) *Task[V] {
	return &Task[V]{cfg: cfg.withDefaults()}
}

// Execute is the callback-oriented core operation (spec.md §4.8). If a
// cached success exists, is unexpired, and forceUpdate is false, completion
// is invoked with it on the callback queue. Otherwise completion joins the
// waiter list; a fresh attempt starts if the task was IDLE, or the call
// coalesces onto the attempt already RUNNING.
func (t *Task[V]) Execute(forceUpdate bool, completion func(Result[V])) {
	t.execute(forceUpdate, completion)
}

func (t *Task[V]) execute(forceUpdate bool, completion func(Result[V])) *waiterSlot[V] {
	t.mu.Lock()

	if !forceUpdate && t.hasCached && t.cachedUnexpired() {
		r := t.cachedResult
		t.mu.Unlock()
		t.cfg.CallbackQueue(func() { completion(r) })
		return nil
	}

	slot := &waiterSlot[V]{fn: completion}
	t.waiters = append(t.waiters, slot)
	wasIdle := t.state == stateIdle
	if wasIdle {
		t.state = stateRunning
		t.currentRetry = t.cfg.RetryPolicy
	} else {
		t.cfg.Metrics.Coalesced()
	}
	t.mu.Unlock()

	if wasIdle {
		t.dispatchExecutor()
	}
	return slot
}

func (t *Task[V]) cachedUnexpired() bool {
	if t.cfg.ResultTTL <= 0 {
		return false
	}
	return t.cfg.Clock.Now().Before(t.cachedUntil)
}

func (t *Task[V]) dispatchExecutor() {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.cancelTimer = nil
	t.mu.Unlock()

	t.cfg.Metrics.Execution()
	t.cfg.ExecutionQueue(func() {
		t.cfg.Executor(func(r Result[V]) { t.onComplete(gen, r) })
	})
}

func (t *Task[V]) onComplete(gen uint64, r Result[V]) {
	t.mu.Lock()
	if gen != t.generation {
		// Stale: this attempt was abandoned by ClearResult(Cancel, ...)
		// and a later attempt (or none) has since taken over.
		t.mu.Unlock()
		return
	}

	if r.OK() {
		t.hasCached = true
		t.cachedResult = r
		if t.cfg.ResultTTL > 0 {
			t.cachedUntil = t.cfg.Clock.Now().Add(t.cfg.ResultTTL)
		}
		waiters, restart := t.drainWaitersLocked()
		t.mu.Unlock()
		t.deliver(waiters, r)
		if restart {
			t.dispatchExecutor()
		}
		return
	}

	if t.currentRetry.ShouldRetry() {
		delay := t.currentRetry.NextDelay()
		t.currentRetry = t.currentRetry.Advance()
		thisGen := gen
		t.mu.Unlock()
		t.cfg.Metrics.Retry()
		// Timer may fire synchronously (tests do this to avoid real
		// sleeps), so it must run with t.mu free; dispatchExecutor takes
		// the lock itself. cancelTimer is recorded best-effort — if the
		// Timer already fired inline, the cancel func is a no-op, and the
		// generation check in dispatchExecutor's completion still guards
		// correctness if a ClearResult races in between.
		cancel := t.cfg.Timer(delay, func() { t.dispatchExecutor() })
		t.mu.Lock()
		if t.generation == thisGen {
			t.cancelTimer = cancel
		}
		t.mu.Unlock()
		return
	}

	waiters, restart := t.drainWaitersLocked()
	t.mu.Unlock()
	final := Failure[V](taskerr.RetryExhausted(r.Err))
	t.deliver(waiters, final)
	if restart {
		t.dispatchExecutor()
	}
}

// drainWaitersLocked transitions to IDLE and clears the waiter list,
// reporting whether ClearResult asked to restart-when-idle — the caller
// must call dispatchExecutor itself, after unlocking t.mu (dispatchExecutor
// locks internally, so calling it while t.mu is still held would
// deadlock). Caller must hold t.mu.
func (t *Task[V]) drainWaitersLocked() (waiters []*waiterSlot[V], restart bool) {
	waiters = t.waiters
	t.waiters = nil
	t.state = stateIdle
	if t.restartPending {
		t.restartPending = false
		t.state = stateRunning
		t.currentRetry = t.cfg.RetryPolicy
		restart = true
	}
	return waiters, restart
}

// deliver invokes every non-canceled waiter, in attach order, from within
// a single CallbackQueue dispatch.
func (t *Task[V]) deliver(waiters []*waiterSlot[V], r Result[V]) {
	if len(waiters) == 0 {
		return
	}
	t.cfg.CallbackQueue(func() {
		for _, w := range waiters {
			if !w.canceled {
				w.fn(r)
			}
		}
	})
}

// AsyncExecute blocks until a terminal result is available, per spec.md
// §4.8's "ambient cooperative-task facility" adapter over Execute.
// Canceling ctx detaches only this caller's waiter; the underlying
// execution (and any other waiters) continues.
func (t *Task[V]) AsyncExecute(ctx context.Context, forceUpdate bool) (V, error) {
	ch := make(chan Result[V], 1)
	slot := t.execute(forceUpdate, func(r Result[V]) { ch <- r })

	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		if slot != nil {
			t.mu.Lock()
			slot.canceled = true
			t.mu.Unlock()
		}
		var zero V
		return zero, taskerr.Cancellation()
	}
}

// ClearResult discards the cached success. If ongoing is Cancel, every
// waiter present at the call site is detached and delivered
// taskerr.Cancellation immediately; the executor itself keeps running and
// any eventual completion is discarded (the waiter list it would have
// delivered to is already empty). If restartWhenIdle, a fresh Execute is
// scheduled for the moment the task returns to IDLE (immediately, if it
// already is).
func (t *Task[V]) ClearResult(ongoing OngoingStrategy, restartWhenIdle bool) {
	t.mu.Lock()
	t.hasCached = false
	var zero Result[V]
	t.cachedResult = zero

	if ongoing == Cancel && t.state == stateRunning {
		waiters := t.waiters
		t.waiters = nil
		t.state = stateIdle
		// Bump generation and stop any scheduled retry so a completion
		// or retry fire from the abandoned attempt is discarded instead
		// of reviving it.
		t.generation++
		if t.cancelTimer != nil {
			t.cancelTimer()
			t.cancelTimer = nil
		}
		if restartWhenIdle {
			t.state = stateRunning
			t.currentRetry = t.cfg.RetryPolicy
			defer t.dispatchExecutor()
		}
		t.mu.Unlock()
		t.deliver(waiters, Failure[V](taskerr.Cancellation()))
		return
	}

	if restartWhenIdle {
		if t.state == stateIdle {
			t.state = stateRunning
			t.currentRetry = t.cfg.RetryPolicy
			t.mu.Unlock()
			t.dispatchExecutor()
			return
		}
		t.restartPending = true
	}
	t.mu.Unlock()
}
