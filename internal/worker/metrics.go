package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	tasksTotal        *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	activeTasks       prometheus.Gauge
	bytesWrittenTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "styleflow_worker_tasks_total",
			Help: "Total transform tasks by style and outcome.",
		}, []string{"style", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "styleflow_worker_task_duration_seconds",
			Help:    "Processing duration of each transform task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"style", "status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "styleflow_worker_active_tasks",
			Help: "Transform tasks currently running in this worker.",
		}),
		bytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "styleflow_worker_result_bytes_total",
			Help: "Total bytes of styled images written to object storage.",
		}),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.bytesWrittenTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
