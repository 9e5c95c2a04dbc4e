package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksSpawned counts every spawn() call.
	TasksSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rmach_tasks_spawned_total",
			Help: "Total number of tasks spawned",
		},
	)

	TasksClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rmach_tasks_closed_total",
			Help: "Total number of tasks that exited, by reason",
		},
		[]string{"reason"}, // end, halt, overflow, fault
	)

	TasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rmach_tasks_running",
			Help: "Number of tasks currently tracked by the kernel",
		},
	)

	PortsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rmach_ports_created_total",
			Help: "Total number of ports created",
		},
	)

	PortsDestroyed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rmach_ports_destroyed_total",
			Help: "Total number of ports destroyed",
		},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rmach_messages_sent_total",
			Help: "Total number of IPC send attempts, by resulting status",
		},
		[]string{"status"},
	)

	HandoffsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rmach_handoffs_total",
			Help: "Total number of sends that produced a scheduler handoff",
		},
	)

	HandlerFaults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rmach_handler_faults_total",
			Help: "Total number of native handler panics recovered by IPC",
		},
	)

	SchedulerRunQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rmach_scheduler_runqueue_depth",
			Help: "Number of ready tasks queued per priority level",
		},
		[]string{"priority"},
	)

	QuantumExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rmach_quantum_exhausted_total",
			Help: "Total number of times a task's time slice expired",
		},
	)

	VMStepsExecuted = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rmach_vm_steps_per_dispatch",
			Help:    "Number of opcodes executed per kernel dispatch",
			Buckets: prometheus.LinearBuckets(1, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksSpawned,
		TasksClosed,
		TasksRunning,
		PortsCreated,
		PortsDestroyed,
		MessagesSent,
		HandoffsTotal,
		HandlerFaults,
		SchedulerRunQueueDepth,
		QuantumExhausted,
		VMStepsExecuted,
	)
}

// Handler returns the Prometheus scrape handler, for embedding in an
// ambient HTTP mux if a caller wants one. The kernel itself never opens
// a listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing operations and observing the
// elapsed duration into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration since the timer started into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration into a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
