package metrics

import (
	"prepaid-subscription/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		entitlementsLapsedTotal,
		entitlementsTotal,
	)
}

var (
	entitlementsLapsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_lapsed_total",
			Help: "Code-based entitlements canceled by the lapse sweep.",
		},
	)

	entitlementsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entitlements_total",
			Help: "Current number of entitlements by status.",
		},
		[]string{"status"},
	)
)

func AddEntitlementsLapsed(count int) {
	entitlementsLapsedTotal.Add(float64(count))
}

func SetEntitlementsTotal(counts map[model.EntitlementStatus]int) {
	for status, count := range counts {
		entitlementsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
