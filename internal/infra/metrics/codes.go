package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		codesGeneratedTotal,
		codeRedemptionsTotal,
		codeAdminActionsTotal,
		codesExpiredTotal,
		purchasesFinalizedTotal,
	)
}

var (
	codesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_generated_total",
			Help: "Total number of subscription codes persisted.",
		},
	)

	codeRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_redemptions_total",
			Help: "Redemption attempts by result reason (ok, not_found, already_redeemed, ...).",
		},
		[]string{"result"},
	)

	codeAdminActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_admin_actions_total",
			Help: "Revoke/reactivate/make-available calls by result.",
		},
		[]string{"action", "result"},
	)

	codesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_expired_total",
			Help: "Codes moved to expired, lazily or by the sweep.",
		},
	)

	purchasesFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_finalized_total",
			Help: "Purchase records created, labeled by source (checkout, admin_grant).",
		},
		[]string{"source"},
	)
)

func AddCodesGenerated(n int) {
	codesGeneratedTotal.Add(float64(n))
}

func IncRedemption(result string) {
	codeRedemptionsTotal.WithLabelValues(norm(result)).Inc()
}

func IncAdminAction(action, result string) {
	codeAdminActionsTotal.WithLabelValues(norm(action), norm(result)).Inc()
}

func AddCodesExpired(n int) {
	codesExpiredTotal.Add(float64(n))
}

func IncPurchaseFinalized(source string) {
	purchasesFinalizedTotal.WithLabelValues(norm(source)).Inc()
}
