package keyedtaskmanager

// Maybe is a value that may be present or confirmed-absent, the task-layer
// equivalent of cacheengine's value/absence payload, used wherever a
// DataProvider reports one key's outcome (spec.md §4.9: "a key absent from
// the provider's returned map is treated as success(absent)").
type Maybe[V any] struct {
	Value  V
	Absent bool
}

// Some wraps a present value.
func Some[V any](v V) Maybe[V] { return Maybe[V]{Value: v} }

// None reports a confirmed absence.
func None[V any]() Maybe[V] { return Maybe[V]{Absent: true} }

// ProviderResult is one key's outcome from a DataProvider call: either a
// Maybe[V] success or an error.
type ProviderResult[V any] struct {
	Value Maybe[V]
	Err   error
}

func ProviderSuccess[V any](v Maybe[V]) ProviderResult[V] { return ProviderResult[V]{Value: v} }
func ProviderFailure[V any](err error) ProviderResult[V]  { return ProviderResult[V]{Err: err} }
func (r ProviderResult[V]) OK() bool                      { return r.Err == nil }

// DataProvider is the tagged union of the four fetch shapes spec.md §4.9
// enumerates. Exactly one field should be set. If several are, Manager
// prefers a batch field over a mono field, and within each pair the Sync
// form over the Async form.
type DataProvider[K comparable, V any] struct {
	// SyncMono fetches one key, blocking the calling goroutine.
	SyncMono func(k K) ProviderResult[V]
	// AsyncMono fetches one key, signaling completion asynchronously.
	AsyncMono func(k K, completion func(ProviderResult[V]))
	// SyncBatch fetches many keys at once, blocking. A key present in the
	// request but absent from the returned map is treated as success(absent).
	SyncBatch func(keys []K) map[K]ProviderResult[V]
	// AsyncBatch fetches many keys at once, signaling completion
	// asynchronously with the same map contract as SyncBatch. MaxBatchSize
	// bounds how many newly-promoted keys are grouped into one invocation.
	AsyncBatch   func(keys []K, completion func(map[K]ProviderResult[V]))
	MaxBatchSize int
}

func (p DataProvider[K, V]) isBatch() bool {
	return p.SyncBatch != nil || p.AsyncBatch != nil
}

func (p DataProvider[K, V]) maxBatchSize() int {
	if p.MaxBatchSize <= 0 {
		return 1
	}
	return p.MaxBatchSize
}
