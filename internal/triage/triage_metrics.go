package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	ClassifyAttempts    *prometheus.CounterVec
	ClassifyDuration    prometheus.Histogram
	ClassificationTotal *prometheus.CounterVec
	MissingFieldsTotal  *prometheus.CounterVec
	IssuesMissingInfo   prometheus.Counter
	MutationsPlanned    *prometheus.CounterVec
	SubmitsTotal        *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_runs_total",
			Help: "Total triage runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triagebot_run_duration_seconds",
			Help:    "Duration of triage runs in seconds, backoff waits included.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"status"}),
		ClassifyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_classify_attempts_total",
			Help: "Classifier provider calls by outcome.",
		}, []string{"outcome"}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triagebot_classify_attempt_duration_seconds",
			Help:    "Duration of individual classifier provider calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}),
		ClassificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_classifications_total",
			Help: "Classifications applied by category and source.",
		}, []string{"category", "source"}),
		MissingFieldsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_missing_fields_total",
			Help: "Required fields found missing, by field name.",
		}, []string{"field"}),
		IssuesMissingInfo: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagebot_issues_missing_info_total",
			Help: "Field checks with at least one required field missing.",
		}),
		MutationsPlanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_mutations_planned_total",
			Help: "Label and comment mutations planned by completed or failed runs.",
		}, []string{"kind"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_submits_total",
			Help: "Total event submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ClassifyAttempts,
		m.ClassifyDuration,
		m.ClassificationTotal,
		m.MissingFieldsTotal,
		m.IssuesMissingInfo,
		m.MutationsPlanned,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnClassifyAttempt: func(outcome string, duration float64) {
			m.ClassifyAttempts.WithLabelValues(outcome).Inc()
			m.ClassifyDuration.Observe(duration)
		},
		OnClassified: func(category string, source Source) {
			m.ClassificationTotal.WithLabelValues(category, string(source)).Inc()
		},
		OnFieldsChecked: func(missing []string) {
			if len(missing) == 0 {
				return
			}
			m.IssuesMissingInfo.Inc()
			for _, f := range missing {
				m.MissingFieldsTotal.WithLabelValues(f).Inc()
			}
		},
		OnSubmit: func(result string) {
			m.SubmitsTotal.WithLabelValues(result).Inc()
		},
		OnRunComplete: func(run *Run) {
			m.RunsTotal.WithLabelValues(string(run.Status)).Inc()
			m.RunDuration.WithLabelValues(string(run.Status)).Observe(run.Duration)
			if run.Desired == nil {
				return
			}
			m.MutationsPlanned.WithLabelValues("label_add").Add(float64(len(run.Desired.LabelsToAdd)))
			m.MutationsPlanned.WithLabelValues("label_remove").Add(float64(len(run.Desired.LabelsToRemove)))
			if run.Desired.Comment != CommentNone {
				m.MutationsPlanned.WithLabelValues("comment_" + string(run.Desired.Comment)).Inc()
			}
			if run.Desired.Notice != nil {
				m.MutationsPlanned.WithLabelValues("notice_" + string(run.Desired.Notice.Action)).Inc()
			}
		},
	}
}
