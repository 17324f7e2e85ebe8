package singleflighttask

// Result is a task's terminal outcome: success carries V, failure carries
// a *taskerr.Error (see taskerr). Modeled as a plain struct rather than a
// Go error-return pair because it crosses the waiter-callback boundary,
// where a (V, error) tuple would need its own wrapper anyway.
type Result[V any] struct {
	Value V
	Err   error
}

// Success builds a successful Result.
func Success[V any](v V) Result[V] { return Result[V]{Value: v} }

// Failure builds a failed Result.
func Failure[V any](err error) Result[V] { return Result[V]{Err: err} }

// OK reports whether the result is a success.
func (r Result[V]) OK() bool { return r.Err == nil }
