package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/internal/store/model"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var jobStatuses = []model.JobStatus{
	model.JobStatusPending,
	model.JobStatusProcessing,
	model.JobStatusComplete,
	model.JobStatusFailed,
}

// jobStatusCollector reads the number of jobs per status from the store on every scrape.
type jobStatusCollector struct {
	store    store.Store
	jobs     *prometheus.Desc
	maxQuery time.Duration
}

func NewJobStatusCollector(s store.Store) prometheus.Collector {
	return &jobStatusCollector{
		store: s,
		jobs: prometheus.NewDesc(
			fmt.Sprintf("%s_jobs", mediaAnalyzer),
			"Number of jobs in the store by status.",
			[]string{jobStatusLabel},
			prometheus.Labels{},
		),
		maxQuery: 5 * time.Second,
	}
}

func RegisterJobStatusCollector(s store.Store) {
	prometheus.MustRegister(NewJobStatusCollector(s))
}

func (c *jobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
}

// Collect implements Collector.
func (c *jobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.maxQuery)
	defer cancel()

	for _, status := range jobStatuses {
		count, err := c.store.Job().Count(ctx, store.NewJobQueryFilter().ByStatus(status))
		if err != nil {
			zap.S().Named("job_collector").Errorf("failed to count %s jobs: %s", status, err)
			return
		}
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(count), string(status))
	}
}
