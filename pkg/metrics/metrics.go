package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

var (
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminus_logins_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminus_requests_total",
			Help: "Total number of data requests per resource and status code",
		},
		[]string{"resource", "code"},
	)

	ReloginsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luminus_relogins_total",
			Help: "Total number of times an expired session was re-established",
		},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luminus_request_duration_seconds",
			Help:    "Data request duration in seconds per resource",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminus_snapshots_total",
			Help: "Total number of price snapshots taken by result",
		},
		[]string{"result"},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "luminus_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luminus_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

// ObserveRequest records a finished data request. A code of 0 means no
// response was received.
func ObserveRequest(resource string, code int, started time.Time) {
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	RequestsTotal.WithLabelValues(resource, label).Inc()
	RequestDurationSeconds.WithLabelValues(resource).Observe(time.Since(started).Seconds())
}

func ObserveLogin(err error) {
	if err != nil {
		LoginsTotal.WithLabelValues(ResultFailure).Inc()
		return
	}
	LoginsTotal.WithLabelValues(ResultSuccess).Inc()
}

func UpdateJobMetrics(job string, err error) {
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
