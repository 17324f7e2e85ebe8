package metrics

// NoopCache discards every call. It is the default cacheengine.Options
// metrics collaborator, matching the teacher's NoopMetrics
// (cache/metrics.go).
type NoopCache struct{}

func (NoopCache) Access(AccessRecord) {}
func (NoopCache) Evict(EvictReason)   {}
func (NoopCache) Size(int, int64)     {}

// NoopTasks discards every call. It is the default Options metrics
// collaborator for singleflighttask and keyedtaskmanager.
type NoopTasks struct{}

func (NoopTasks) Pending(int) {}
func (NoopTasks) Running(int) {}
func (NoopTasks) Coalesced()  {}
func (NoopTasks) Execution()  {}
func (NoopTasks) Retry()      {}
func (NoopTasks) Overflow()   {}

var (
	_ Cache = NoopCache{}
	_ Tasks = NoopTasks{}
)
