package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal) }

var jobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_runs_total",
		Help: "Scheduled job runs, labeled by job and result.",
	},
	[]string{"job", "result"}, // result: 'ok', 'error', 'skipped'
)

func IncJobRun(job, result string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
}
