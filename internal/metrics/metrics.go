// Package metrics records grading-run metrics in a private Prometheus
// registry. A batch run has no scrape endpoint, so the registry is written
// to a node-exporter textfile at the end.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"redcapgrade/internal/grading"
)

const namespace = "redcapgrade"

// Collector implements fetcher.Observer and tracks run outcomes.
type Collector struct {
	registry *prometheus.Registry

	apiRequests      *prometheus.CounterVec
	apiLatency       *prometheus.HistogramVec
	studentsGraded   prometheus.Counter
	completion       prometheus.Histogram
	qualityRules     prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	lastRunSuccess   prometheus.Gauge
	runDuration      prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "REDCap API requests by export content and outcome.",
		}, []string{"content", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "REDCap API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"content"}),
		studentsGraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_graded_total",
			Help:      "Student projects graded.",
		}),
		completion: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_ratio",
			Help:      "Distribution of completion percentages.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		qualityRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quality_rules",
			Help:      "Data quality rules defined across graded projects.",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	c.registry.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.studentsGraded,
		c.completion,
		c.qualityRules,
		c.lastRunTimestamp,
		c.lastRunSuccess,
		c.runDuration,
	)
	return c
}

func (c *Collector) ObserveRequest(content string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.apiRequests.WithLabelValues(content, outcome).Inc()
	c.apiLatency.WithLabelValues(content).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveEvaluation(e grading.Evaluation) {
	c.studentsGraded.Inc()
	c.completion.Observe(e.CompletionPct)
}

func (c *Collector) SetQualityRules(n int) {
	c.qualityRules.Set(float64(n))
}

// Finish stamps the run outcome.
func (c *Collector) Finish(started time.Time, runErr error) {
	now := time.Now()
	c.lastRunTimestamp.Set(float64(now.Unix()))
	c.runDuration.Set(now.Sub(started).Seconds())
	if runErr == nil {
		c.lastRunSuccess.Set(1)
	} else {
		c.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the registry atomically in the text exposition
// format.
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics textfile path required")
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
