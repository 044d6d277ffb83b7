// Package metrics exposes the daemon's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calld_transfers_total",
		Help: "Finished transfers by flow and final status.",
	}, []string{"flow", "result"})

	RelocatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calld_relocates_total",
		Help: "Finished relocates by final status.",
	}, []string{"result"})

	OperationsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "calld_operations_in_flight",
		Help: "Live transfer and relocate records.",
	}, []string{"kind"})
)
