package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(broadcastDeliveriesTotal) }

var broadcastDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "broadcast_deliveries_total",
		Help: "Broadcast messages per delivery status.",
	},
	[]string{"status"}, // 'sent', 'failed'
)

func AddBroadcastDeliveries(status string, n int) {
	broadcastDeliveriesTotal.WithLabelValues(norm(status)).Add(float64(n))
}
