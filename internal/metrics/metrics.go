package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rentbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Reservation admission outcomes by booking type.",
		},
		[]string{"booking_type", "outcome"},
	)

	admissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "Time spent admitting a reservation, storage included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"booking_type"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Spreadsheet sync tasks by type and result.",
		},
		[]string{"task_type", "result"},
	)

	idempotencyStoreDown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "idempotency_store_down",
			Help:      "1 while the primary idempotency store is unavailable.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, admissions, admissionDuration, syncTasks, idempotencyStoreDown)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

// ObserveAdmission records one admission attempt. outcome is "admitted", a rejection code or "error".
func ObserveAdmission(bookingType, outcome string, elapsed time.Duration) {
	if bookingType == "" {
		bookingType = "unknown"
	}
	admissions.WithLabelValues(bookingType, outcome).Inc()
	admissionDuration.WithLabelValues(bookingType).Observe(elapsed.Seconds())
}

func IncSyncTask(taskType, result string) {
	syncTasks.WithLabelValues(taskType, result).Inc()
}

func SetIdempotencyStoreDown(down bool) {
	if down {
		idempotencyStoreDown.Set(1)
		return
	}
	idempotencyStoreDown.Set(0)
}
