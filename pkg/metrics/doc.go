// Package metrics provides Prometheus instrumentation for threadpool components.
//
// # Overview
//
// The registry exposes, per pool name:
//   - pool state gauges (size, idle workers, queued tasks)
//   - task counters (submitted, rejected, completed, failed)
//   - execution duration and queue wait histograms
//   - scheduler firings, split by outcome
//
// # Quick Start
//
// Attach a registry through the pool configuration:
//
//	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
//	pool, err := workerpool.NewWithConfig(workerpool.Config{
//		WorkerCount: 8,
//		Name:        "ingest",
//		Metrics:     reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// promauto panics when the same metric is registered twice on one
// registerer, so create one Registry per Prometheus registerer and share it
// between pools; the pool_name label keeps their series apart. Tests should
// use a fresh prometheus.NewRegistry() each time.
package metrics
