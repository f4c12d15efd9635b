package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the inbound job pipeline.
type PipelineMetrics struct {
	jobsTotal    *prometheus.CounterVec
	retriesTotal prometheus.Counter
	jobLatency   *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendia",
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Total inbound message jobs by terminal outcome",
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agendia",
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Total job retry attempts scheduled",
		}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agendia",
			Subsystem: "pipeline",
			Name:      "job_seconds",
			Help:      "Latency of a single job attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.jobsTotal, m.retriesTotal, m.jobLatency)
	return m
}

func (m *PipelineMetrics) ObserveJob(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *PipelineMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// FollowUpMetrics exposes counters for the follow-up trigger engine.
type FollowUpMetrics struct {
	sentTotal    *prometheus.CounterVec
	skippedTotal *prometheus.CounterVec
	sweepErrors  prometheus.Counter
}

func NewFollowUpMetrics(reg prometheus.Registerer) *FollowUpMetrics {
	m := &FollowUpMetrics{
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendia",
			Subsystem: "followup",
			Name:      "sent_total",
			Help:      "Total follow-up notifications by trigger type and status",
		}, []string{"trigger", "status"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendia",
			Subsystem: "followup",
			Name:      "skipped_total",
			Help:      "Follow-up evaluations skipped by reason",
		}, []string{"reason"}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agendia",
			Subsystem: "followup",
			Name:      "sweep_errors_total",
			Help:      "Per-company sweep failures",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sentTotal, m.skippedTotal, m.sweepErrors)
	return m
}

func (m *FollowUpMetrics) ObserveSend(trigger, status string) {
	if m == nil {
		return
	}
	m.sentTotal.WithLabelValues(trigger, status).Inc()
}

func (m *FollowUpMetrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *FollowUpMetrics) ObserveSweepError() {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}
