package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/threadpool/pkg/metrics"
)

// NewWithMetrics creates a pool of workerCount workers whose metrics are
// registered on reg under the given pool name. A nil reg uses the Prometheus
// default registerer.
func NewWithMetrics(workerCount int, name string, reg prometheus.Registerer) (*Pool, error) {
	registry := metrics.Config{
		Enabled:  true,
		Registry: reg,
	}.Build()

	return NewWithConfig(Config{
		WorkerCount: workerCount,
		Name:        name,
		Metrics:     registry,
	})
}

// instrumentation records pool metrics. A nil *instrumentation is valid and
// records nothing, so call sites never check whether metrics are enabled.
type instrumentation struct {
	registry *metrics.Registry
	name     string
}

func newInstrumentation(registry *metrics.Registry, name string, size int) *instrumentation {
	if registry == nil {
		return nil
	}
	m := &instrumentation{registry: registry, name: name}
	registry.WorkerPoolSize.WithLabelValues(name).Set(float64(size))
	registry.WorkerPoolIdle.WithLabelValues(name).Set(float64(size))
	registry.WorkerPoolQueued.WithLabelValues(name).Set(0)
	return m
}

// submitted and state are called with the pool lock held, so gauge writes
// land in the same order as the queue changes they describe.
func (m *instrumentation) submitted(queued int) {
	if m == nil {
		return
	}
	m.registry.TasksSubmitted.WithLabelValues(m.name).Inc()
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(float64(queued))
}

func (m *instrumentation) rejected() {
	if m == nil {
		return
	}
	m.registry.TasksRejected.WithLabelValues(m.name).Inc()
}

func (m *instrumentation) state(idle, queued int) {
	if m == nil {
		return
	}
	m.registry.WorkerPoolIdle.WithLabelValues(m.name).Set(float64(idle))
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(float64(queued))
}

func (m *instrumentation) finished(result Result) {
	if m == nil {
		return
	}
	m.registry.TaskQueueWait.WithLabelValues(m.name).Observe(result.QueueWait.Seconds())
	m.registry.TaskExecutionDuration.WithLabelValues(m.name).Observe(result.Duration.Seconds())
	if result.Error != nil {
		m.registry.TasksFailed.WithLabelValues(m.name).Inc()
	} else {
		m.registry.TasksCompleted.WithLabelValues(m.name).Inc()
	}
}
