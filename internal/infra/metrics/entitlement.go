package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		redeemCodesGeneratedTotal,
		redeemCodesRedeemedTotal,
	)
}

var (
	redeemCodesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redeem_codes_generated_total",
			Help: "Total number of premium redeem codes issued by admins.",
		},
	)

	redeemCodesRedeemedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeem_codes_redeemed_total",
			Help: "Redeem attempts by result.",
		},
		[]string{"result"}, // 'ok', 'not_found', 'error'
	)
)

func IncCodesGenerated() {
	redeemCodesGeneratedTotal.Inc()
}

func IncCodeRedeemed(result string) {
	redeemCodesRedeemedTotal.WithLabelValues(norm(result)).Inc()
}
