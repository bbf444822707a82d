// internal/service/negotiation/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haggle_negotiation_decisions_total",
		Help: "Offer evaluation decisions by outcome.",
	}, []string{"decision"})

	redemptionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haggle_discount_redemptions_total",
		Help: "Discount credential redemption attempts by source and outcome.",
	}, []string{"source", "outcome"})
)
