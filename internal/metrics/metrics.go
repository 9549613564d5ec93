package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsFinished counts jobs by terminal status
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytaudio_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	// JobAttempts counts fetch attempts per fetcher
	JobAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytaudio_job_attempts_total",
			Help: "Total number of fetch attempts",
		},
		[]string{"fetcher"},
	)

	// Retries counts scheduled retries by error class
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytaudio_retries_total",
			Help: "Total number of retries scheduled after a failed attempt",
		},
		[]string{"class"},
	)

	// JobDuration tracks wall time of a job body including retries
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ytaudio_job_duration_seconds",
			Help:    "Job duration in seconds, including retries and backoff",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// WorkersActive tracks occupied worker slots
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytaudio_workers_active",
			Help: "Number of worker slots currently running a job",
		},
	)
)
