package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	mediaAnalyzer = "media_analyzer"

	// Job metrics
	jobsSubmittedTotal = "jobs_submitted_total"
	jobsFinishedTotal  = "jobs_finished_total"
	jobsRunning        = "jobs_running"

	// Segment metrics
	segmentsAnalyzedTotal   = "segments_analyzed_total"
	segmentAnalysisDuration = "segment_analysis_duration_seconds"

	// Labels
	jobStatusLabel      = "status"
	segmentOutcomeLabel = "outcome"
)

/**
* Metrics definition
**/
var jobsSubmittedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: mediaAnalyzer,
		Name:      jobsSubmittedTotal,
		Help:      "number of jobs accepted for analysis",
	},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mediaAnalyzer,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal status",
	},
	[]string{jobStatusLabel},
)

var jobsRunningMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: mediaAnalyzer,
		Name:      jobsRunning,
		Help:      "number of jobs currently processed by the workers",
	},
)

var segmentsAnalyzedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mediaAnalyzer,
		Name:      segmentsAnalyzedTotal,
		Help:      "number of analyzed segments by outcome",
	},
	[]string{segmentOutcomeLabel},
)

var segmentAnalysisDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: mediaAnalyzer,
		Name:      segmentAnalysisDuration,
		Help:      "time spent analyzing one segment",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	},
	[]string{segmentOutcomeLabel},
)

func IncreaseJobsSubmittedMetric() {
	jobsSubmittedTotalMetric.Inc()
}

func IncreaseJobsFinishedMetric(status string) {
	jobsFinishedTotalMetric.With(prometheus.Labels{jobStatusLabel: status}).Inc()
}

func JobStarted() {
	jobsRunningMetric.Inc()
}

func JobStopped() {
	jobsRunningMetric.Dec()
}

func ObserveSegmentAnalysis(success bool, d time.Duration) {
	labels := prometheus.Labels{segmentOutcomeLabel: "success"}
	if !success {
		labels[segmentOutcomeLabel] = "failure"
	}
	segmentsAnalyzedTotalMetric.With(labels).Inc()
	segmentAnalysisDurationMetric.With(labels).Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedTotalMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(jobsRunningMetric)
	prometheus.MustRegister(segmentsAnalyzedTotalMetric)
	prometheus.MustRegister(segmentAnalysisDurationMetric)
}
