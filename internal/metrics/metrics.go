package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics (master)
	TasksAssigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cyclone_tasks_assigned_total",
			Help: "Total number of TASK_ASSIGN replies sent by the master",
		},
	)

	TasksFinished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cyclone_tasks_finished_total",
			Help: "Total number of tasks recorded FINISHED by the master",
		},
	)

	TasksReassigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cyclone_tasks_reassigned_total",
			Help: "Total number of tasks reassigned after their resend timeout elapsed",
		},
	)

	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclone_dispatch_errors_total",
			Help: "Total number of errors counted by the master dispatch loop, by kind",
		},
		[]string{"kind"},
	)

	ControllersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyclone_controllers_active",
			Help: "Current number of controllers with a live heartbeat",
		},
	)

	TaskQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyclone_task_queue_depth",
			Help: "Current depth of the master's task queue",
		},
	)

	ResultQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyclone_result_queue_depth",
			Help: "Current depth of the master's result queue",
		},
	)

	DispatchLoopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyclone_dispatch_loop_duration_seconds",
			Help:    "Time spent handling one received message in the master dispatch loop",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// Worker metrics (controller)
	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyclone_worker_state",
			Help: "1 if the worker slot is in the labeled state, 0 otherwise",
		},
		[]string{"worker_id", "state"},
	)

	TaskExecuteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cyclone_task_execute_errors_total",
			Help: "Total number of task executions that returned or panicked with an error",
		},
	)

	// Admin HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyclone_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclone_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyclone_websocket_connections",
			Help: "Current number of live admin feed WebSocket connections",
		},
	)
)

// RecordDispatchError increments the dispatch error counter for kind.
func RecordDispatchError(kind string) {
	DispatchErrors.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an admin HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
