package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(maintenancePrunedTotal, maintenanceRunsTotal) }

var (
	maintenancePrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_pruned_total",
			Help: "Entries removed by the maintenance job, labeled by store.",
		},
		[]string{"store"}, // 'usage', 'codes', 'premium', 'state', 'ratelimit'
	)

	maintenanceRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_runs_total",
			Help: "Maintenance job runs, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)
)

func AddPruned(store string, n int) {
	maintenancePrunedTotal.WithLabelValues(norm(store)).Add(float64(n))
}

func IncMaintenanceRun(status string) {
	maintenanceRunsTotal.WithLabelValues(norm(status)).Inc()
}
