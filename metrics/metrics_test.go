package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pointsmarket/metrics"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestCollector_RecordPurchase(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordPurchase(300)
	c.RecordPurchase(150)

	assert.Equal(t, float64(2), counterValue(t, reg, "pointsmarket_purchases_total"))
	assert.Equal(t, float64(450), counterValue(t, reg, "pointsmarket_points_spent_total"))
}

func TestCollector_RecordGrantRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordGrantRun(3, 3000)

	assert.Equal(t, float64(1), counterValue(t, reg, "pointsmarket_grant_runs_total"))
	assert.Equal(t, float64(3), counterValue(t, reg, "pointsmarket_grant_users_credited_total"))
	assert.Equal(t, float64(3000), counterValue(t, reg, "pointsmarket_points_granted_total"))
}
