// Package metrics collects and exposes Prometheus metrics for the
// marketplace: purchase volume, points spent, and bulk grant activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/pointsmarket/market"
)

// Collector implements market.Recorder on Prometheus counters.
type Collector struct {
	purchases     prometheus.Counter
	pointsSpent   prometheus.Counter
	grantRuns     prometheus.Counter
	usersCredited prometheus.Counter
	pointsGranted prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsmarket_purchases_total",
			Help: "Completed purchases.",
		}),
		pointsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsmarket_points_spent_total",
			Help: "Points debited by purchases.",
		}),
		grantRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsmarket_grant_runs_total",
			Help: "Completed bulk grant runs.",
		}),
		usersCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsmarket_grant_users_credited_total",
			Help: "Users credited by bulk grant runs.",
		}),
		pointsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsmarket_points_granted_total",
			Help: "Points credited by bulk grant runs.",
		}),
	}

	reg.MustRegister(
		c.purchases,
		c.pointsSpent,
		c.grantRuns,
		c.usersCredited,
		c.pointsGranted,
	)

	return c
}

// RecordPurchase records one completed purchase and the points it spent.
func (c *Collector) RecordPurchase(points int64) {
	c.purchases.Inc()
	c.pointsSpent.Add(float64(points))
}

// RecordGrantRun records one completed bulk grant run.
func (c *Collector) RecordGrantRun(credited int, points int64) {
	c.grantRuns.Inc()
	c.usersCredited.Add(float64(credited))
	c.pointsGranted.Add(float64(points))
}

// Handler returns the /metrics endpoint for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

var _ market.Recorder = (*Collector)(nil)
