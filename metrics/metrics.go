package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tournament_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	progressionPlans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_progression_plans_total",
		Help: "Knockout progression plans by kind and execution result",
	}, []string{"kind", "result"})

	couplingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tournament_coupling_duration_seconds",
		Help:    "Duration of progress/license coupling transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})

	rewardOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_reward_outcomes_total",
		Help: "Per participant reward distribution outcomes",
	}, []string{"result"})

	assessmentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_assessment_transitions_total",
		Help: "Skill assessment transitions by target status",
	}, []string{"to", "no_op"})

	divergentPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tournament_progress_license_divergent_pairs",
		Help: "Progress/license pairs found diverged by the last audit",
	})

	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_job_runs_total",
		Help: "Background job runs by job and result",
	}, []string{"job", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func ObserveProgressionPlan(kind, result string) {
	progressionPlans.WithLabelValues(kind, result).Inc()
}

func ObserveCoupling(operation, result string, duration time.Duration) {
	couplingDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

func ObserveReward(result string) {
	rewardOutcomes.WithLabelValues(result).Inc()
}

func ObserveAssessmentTransition(to string, noOp bool) {
	label := "false"
	if noOp {
		label = "true"
	}
	assessmentTransitions.WithLabelValues(to, label).Inc()
}

// SetDivergentPairs sets the divergence gauge to a specific count.
func SetDivergentPairs(count int) {
	if count < 0 {
		count = 0
	}
	divergentPairs.Set(float64(count))
}

func ObserveJobRun(job, result string) {
	jobRuns.WithLabelValues(job, result).Inc()
}
