package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SettlementsTotal counts settled customers by lane and outcome.
	SettlementsTotal *prometheus.CounterVec
	// ChargedAmount records the amount charged per settlement.
	ChargedAmount *prometheus.HistogramVec
	// ChangeShortfallTotal counts settlements where the register could not pay full change.
	ChangeShortfallTotal *prometheus.CounterVec
	// InventoryAdjustmentsTotal counts receipt-level inventory adjustments by reason.
	InventoryAdjustmentsTotal *prometheus.CounterVec
	// LaneDepth reports the number of customers queued per lane.
	LaneDepth *prometheus.GaugeVec
)

// MustRegisterDomainMetrics initialises and registers checkout Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_settlements_total",
			Help:      "Count of settled customers by outcome.",
		}, []string{"lane", "outcome"})
		ChargedAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_charged_amount",
			Help:      "Distribution of amounts charged per settlement.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"lane"})
		ChangeShortfallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_change_shortfall_total",
			Help:      "Count of settlements where the register could not pay full change.",
		}, []string{"register"})
		InventoryAdjustmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_adjustments_total",
			Help:      "Count of line quantity adjustments applied during settlement.",
		}, []string{"reason"})
		LaneDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lane_depth",
			Help:      "Number of customers queued per lane.",
		}, []string{"lane"})

		mustRegisterCollector(reg, SettlementsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettlementsTotal = v
			}
		})
		mustRegisterCollector(reg, ChargedAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ChargedAmount = v
			}
		})
		mustRegisterCollector(reg, ChangeShortfallTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ChangeShortfallTotal = v
			}
		})
		mustRegisterCollector(reg, InventoryAdjustmentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InventoryAdjustmentsTotal = v
			}
		})
		mustRegisterCollector(reg, LaneDepth, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				LaneDepth = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
