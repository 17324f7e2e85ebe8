package keyedtaskmanager

import (
	"time"

	"github.com/yangchenlarkin/monstra/cacheengine"
	"github.com/yangchenlarkin/monstra/internal/clock"
	"github.com/yangchenlarkin/monstra/metrics"
	"github.com/yangchenlarkin/monstra/monstralog"
	"github.com/yangchenlarkin/monstra/retry"
)

// Strategy picks which pending key is promoted next when a running slot
// frees, per spec.md §4.9.
type Strategy int

const (
	// FIFO promotes the longest-waiting pending key first.
	FIFO Strategy = iota
	// LIFO promotes the most recently enqueued pending key first.
	LIFO
)

// Config configures a Manager. DataProvider is the only required field.
type Config[K comparable, V any] struct {
	DataProvider DataProvider[K, V]

	// MaxPending bounds the pending queue; 0 rejects every key that can't
	// be promoted immediately.
	MaxPending int
	// MaxRunning bounds concurrently executing keys; 0 means nothing ever
	// runs (every fetch either coalesces or queues, and the queue itself
	// never drains).
	MaxRunning int

	RetryPolicy      retry.Policy
	PriorityStrategy Strategy
	Cache            cacheengine.Options[K, V]

	// ExecutionQueue dispatches provider invocations. Default: a new
	// goroutine, matching singleflighttask.Config's convention.
	ExecutionQueue func(func())
	// CallbackQueue dispatches waiter delivery.
	CallbackQueue func(func())
	// Timer schedules a retry attempt after a delay.
	Timer func(d time.Duration, fn func()) (cancel func())

	Clock   clock.Source
	Metrics metrics.Tasks
	Logger  monstralog.Logger
}

func (c *Config[K, V]) withDefaults() Config[K, V] {
	out := *c
	if out.MaxPending < 0 {
		out.MaxPending = 0
	}
	if out.MaxRunning < 0 {
		out.MaxRunning = 0
	}
	if out.ExecutionQueue == nil {
		out.ExecutionQueue = func(f func()) { go f() }
	}
	if out.CallbackQueue == nil {
		out.CallbackQueue = func(f func()) { go f() }
	}
	if out.Timer == nil {
		out.Timer = func(d time.Duration, fn func()) func() {
			timer := time.AfterFunc(d, fn)
			return func() { timer.Stop() }
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
