package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "invoicesync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	tasksEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Sync tasks inserted into the queue by action.",
		},
		[]string{"action"},
	)

	tasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Processed sync tasks by action and result.",
		},
		[]string{"action", "result"},
	)

	tasksDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dead_lettered_total",
			Help:      "Sync tasks that used up their retry budget.",
		},
		[]string{"action"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_tasks",
			Help:      "Sync tasks in the queue by status.",
		},
		[]string{"status"},
	)

	apiCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lexware_api_calls_total",
			Help:      "Calls against the accounting API by endpoint and status class.",
		},
		[]string{"endpoint", "status"},
	)

	alertsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Admin alerts folded into a later summary by the rate limiter.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			tasksEnqueued,
			tasksProcessed,
			tasksDeadLettered,
			queueDepth,
			apiCalls,
			alertsSuppressed,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncEnqueued(action string) {
	tasksEnqueued.WithLabelValues(action).Inc()
}

// IncProcessed counts a finished processing attempt; result is "completed" or "failed".
func IncProcessed(action, result string) {
	tasksProcessed.WithLabelValues(action, result).Inc()
}

func IncDeadLettered(action string) {
	tasksDeadLettered.WithLabelValues(action).Inc()
}

func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(status).Set(float64(n))
}

// ObserveAPICall counts a call; status 0 marks a transport failure.
func ObserveAPICall(endpoint string, status int) {
	apiCalls.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func IncAlertsSuppressed() {
	alertsSuppressed.Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
