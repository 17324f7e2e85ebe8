// Package prom adapts metrics.Cache and metrics.Tasks onto Prometheus,
// generalizing the teacher's single cache.Metrics adapter (which exported
// hits/misses/evictions/size) into two adapters matching the wider
// four-way access record and task-layer gauges spec.md §4.6/§4.9 call for.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/yangchenlarkin/monstra/metrics"
)

// CacheAdapter implements metrics.Cache, exporting per-outcome access
// counters, eviction counters by reason, and resident size gauges.
type CacheAdapter struct {
	access  *prometheus.CounterVec
	evicts  *prometheus.CounterVec
	entries prometheus.Gauge
	cost    prometheus.Gauge
}

// NewCacheAdapter constructs a Prometheus-backed metrics.Cache.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func NewCacheAdapter(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		access: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "accesses_total",
			Help:        "CacheEngine.Get outcomes by kind",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "CacheEngine evictions by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_cost",
			Help:        "Total resident cost",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.access, a.evicts, a.entries, a.cost)
	return a
}

func (a *CacheAdapter) Access(record metrics.AccessRecord) {
	a.access.WithLabelValues(accessLabel(record)).Inc()
}

func (a *CacheAdapter) Evict(reason metrics.EvictReason) {
	a.evicts.WithLabelValues(evictLabel(reason)).Inc()
}

func (a *CacheAdapter) Size(entries int, cost int64) {
	a.entries.Set(float64(entries))
	a.cost.Set(float64(cost))
}

func accessLabel(r metrics.AccessRecord) string {
	switch r {
	case metrics.RecordInvalidKey:
		return "invalid_key"
	case metrics.RecordAbsentHit:
		return "absent_hit"
	case metrics.RecordValueHit:
		return "value_hit"
	default:
		return "miss"
	}
}

func evictLabel(r metrics.EvictReason) string {
	switch r {
	case metrics.EvictExpired:
		return "expired"
	case metrics.EvictOversize:
		return "oversize"
	default:
		return "least_valuable"
	}
}

// TasksAdapter implements metrics.Tasks for singleflighttask.Task and
// keyedtaskmanager.Manager, exporting the pending/running gauges and
// coalesced/execution/retry/overflow counters SPEC_FULL.md §4 names.
type TasksAdapter struct {
	pending    prometheus.Gauge
	running    prometheus.Gauge
	coalesced  prometheus.Counter
	executions prometheus.Counter
	retries    prometheus.Counter
	overflows  prometheus.Counter
}

// NewTasksAdapter constructs a Prometheus-backed metrics.Tasks.
func NewTasksAdapter(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *TasksAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &TasksAdapter{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "pending_keys",
			Help: "Keys waiting for a free running slot", ConstLabels: constLabels,
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "running_keys",
			Help: "Keys currently executing", ConstLabels: constLabels,
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "coalesced_waiters_total",
			Help: "Waiters that joined an already in-flight attempt", ConstLabels: constLabels,
		}),
		executions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "executions_total",
			Help: "Executor/provider invocations", ConstLabels: constLabels,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "retries_total",
			Help: "Retry attempts scheduled after a failure", ConstLabels: constLabels,
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "overflow_total",
			Help: "Fetches rejected because the pending queue was full", ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.pending, a.running, a.coalesced, a.executions, a.retries, a.overflows)
	return a
}

func (a *TasksAdapter) Pending(n int) { a.pending.Set(float64(n)) }
func (a *TasksAdapter) Running(n int) { a.running.Set(float64(n)) }
func (a *TasksAdapter) Coalesced()    { a.coalesced.Inc() }
func (a *TasksAdapter) Execution()    { a.executions.Inc() }
func (a *TasksAdapter) Retry()        { a.retries.Inc() }
func (a *TasksAdapter) Overflow()     { a.overflows.Inc() }

var (
	_ metrics.Cache = (*CacheAdapter)(nil)
	_ metrics.Tasks = (*TasksAdapter)(nil)
)
