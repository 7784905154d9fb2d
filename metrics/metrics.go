// Package metrics defines the Prometheus metrics exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConfigMutationsTotal counts config API mutations by operation and result.
	ConfigMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trss_config_mutations_total",
			Help: "Total number of config mutations",
		},
		[]string{"operation", "result"},
	)

	JobRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trss_job_runs_total",
			Help: "Total number of completed fetch job runs",
		},
	)

	JobRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trss_job_running",
			Help: "1 while a fetch job run is in progress",
		},
	)

	ItemsMatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trss_items_matched_total",
			Help: "Total number of new feed items matched by a config",
		},
		[]string{"config"},
	)

	FeedFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trss_feed_fetch_errors_total",
			Help: "Total number of failed feed fetches",
		},
		[]string{"host"},
	)
)
