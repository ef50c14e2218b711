// Package metrics declares the engine's prometheus instruments.
//
// promauto registers each instrument with the default registry at init time;
// the server exposes them on /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnipesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipetag_snipes_created_total",
		Help: "Snipes created.",
	})

	SnipesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snipetag_snipes_resolved_total",
		Help: "Snipes that reached a terminal state, by outcome.",
	}, []string{"outcome"}) // dodged | completed

	Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snipetag_purchases_total",
		Help: "Successful purchases, by item type.",
	}, []string{"type"})

	AccusationsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snipetag_accusations_resolved_total",
		Help: "Accusations that completed voting, by verdict.",
	}, []string{"verdict"}) // guilty | acquitted

	FanoutRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipetag_fanout_retries_total",
		Help: "Group point-cache propagation attempts that had to be retried.",
	})

	FanoutDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snipetag_fanout_queue_depth",
		Help: "Point propagation jobs waiting in the fan-out queue.",
	})
)
