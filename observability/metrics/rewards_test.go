package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRewardsMetrics(t *testing.T) {
	m := Rewards()
	require.Same(t, m, Rewards())

	m.ObserveOperation("stake", "", time.Millisecond)
	m.ObserveOperation("stake", "InsufficientStake", time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("stake", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("stake", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("stake", "InsufficientStake")))
	require.NotNil(t, m.operationCounter)

	hist, ok := m.latency.WithLabelValues("stake").(prometheus.Histogram)
	require.True(t, ok)
	var sample dto.Metric
	require.NoError(t, hist.Write(&sample))
	require.Equal(t, uint64(2), sample.GetHistogram().GetSampleCount())

	m.RecordMinted("trade", 300)
	m.RecordMinted("trade", 0)
	require.Equal(t, float64(300), testutil.ToFloat64(m.minted.WithLabelValues("trade")))

	m.SetSnapshot(Snapshot{TotalTrades: 4, PoolTradingVolume: 900, Participants: 2})
	require.Equal(t, float64(4), testutil.ToFloat64(m.totalTrades))
	require.Equal(t, float64(900), testutil.ToFloat64(m.poolVolume))
	require.Equal(t, float64(2), testutil.ToFloat64(m.participants))

	var nilMetrics *RewardsMetrics
	nilMetrics.ObserveOperation("stake", "", 0)
	nilMetrics.SetSnapshot(Snapshot{})
}
