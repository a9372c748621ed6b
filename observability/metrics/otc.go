package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type OTCMetrics struct {
	offersListed    prometheus.Counter
	offersTaken     prometheus.Counter
	offersCancelled prometheus.Counter
	feeWithdrawals  *prometheus.CounterVec
	busyRejections  *prometheus.CounterVec
}

var (
	otcOnce     sync.Once
	otcRegistry *OTCMetrics
)

func OTC() *OTCMetrics {
	otcOnce.Do(func() {
		otcRegistry = &OTCMetrics{
			offersListed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "otc_offers_listed_total",
				Help: "Count of offers successfully listed.",
			}),
			offersTaken: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "otc_offers_taken_total",
				Help: "Count of offers executed by a taker.",
			}),
			offersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "otc_offers_cancelled_total",
				Help: "Count of offers cancelled by their maker.",
			}),
			feeWithdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "otc_fee_withdrawals_total",
				Help: "Count of fee payouts to the owner by asset.",
			}, []string{"asset"}),
			busyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "otc_busy_rejections_total",
				Help: "Count of calls rejected by the reentrancy guard by entry point.",
			}, []string{"entry"}),
		}
		prometheus.MustRegister(
			otcRegistry.offersListed,
			otcRegistry.offersTaken,
			otcRegistry.offersCancelled,
			otcRegistry.feeWithdrawals,
			otcRegistry.busyRejections,
		)
	})
	return otcRegistry
}

func (m *OTCMetrics) ObserveOfferListed() {
	if m == nil {
		return
	}
	m.offersListed.Inc()
}

func (m *OTCMetrics) ObserveOfferTaken() {
	if m == nil {
		return
	}
	m.offersTaken.Inc()
}

func (m *OTCMetrics) ObserveOfferCancelled() {
	if m == nil {
		return
	}
	m.offersCancelled.Inc()
}

func (m *OTCMetrics) ObserveFeeWithdrawal(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.feeWithdrawals.WithLabelValues(asset).Inc()
}

func (m *OTCMetrics) ObserveBusyRejection(entry string) {
	if m == nil {
		return
	}
	if entry == "" {
		entry = "unknown"
	}
	m.busyRejections.WithLabelValues(entry).Inc()
}
