package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "latchain/rewards"

// RewardsMetrics tracks reward engine activity as seen by the node.
type RewardsMetrics struct {
	operations   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	minted       *prometheus.CounterVec
	totalTrades  prometheus.Gauge
	poolVolume   prometheus.Gauge
	epochVolume  prometheus.Gauge
	participants prometheus.Gauge
	vaultBalance prometheus.Gauge

	operationCounter metric.Int64Counter
	mintedCounter    metric.Int64Counter
}

var (
	rewardsOnce     sync.Once
	rewardsRegistry *RewardsMetrics
)

// Rewards returns the lazily registered reward metrics.
func Rewards() *RewardsMetrics {
	rewardsOnce.Do(func() {
		rewardsRegistry = &RewardsMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "operations_total",
				Help:      "Reward operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "failures_total",
				Help:      "Failed reward operations segmented by error name.",
			}, []string{"operation", "error"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "operation_duration_seconds",
				Help:      "Latency of reward operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			minted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "minted_total",
				Help:      "Reward tokens minted segmented by source.",
			}, []string{"source"}),
			totalTrades: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "total_trades",
				Help:      "Trades recorded since initialisation.",
			}),
			poolVolume: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "pool_trading_volume",
				Help:      "Cumulative pool trading volume.",
			}),
			epochVolume: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "epoch_trade_volume",
				Help:      "Trade volume counted toward the reward multiplier.",
			}),
			participants: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "participants",
				Help:      "Addresses holding a trade or stake record.",
			}),
			vaultBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lat",
				Subsystem: "rewards",
				Name:      "vault_balance",
				Help:      "Reward tokens held by the staking vault.",
			}),
		}
		prometheus.MustRegister(
			rewardsRegistry.operations,
			rewardsRegistry.failures,
			rewardsRegistry.latency,
			rewardsRegistry.minted,
			rewardsRegistry.totalTrades,
			rewardsRegistry.poolVolume,
			rewardsRegistry.epochVolume,
			rewardsRegistry.participants,
			rewardsRegistry.vaultBalance,
		)
		rewardsRegistry.initMeter()
	})
	return rewardsRegistry
}

// initMeter binds the OTLP counters to the global meter provider, falling
// back to a no-op meter when instrument creation fails.
func (m *RewardsMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter(meterName)
	operations, err := meter.Int64Counter("lat.rewards.operations")
	if err != nil {
		meter = noop.NewMeterProvider().Meter(meterName)
		operations, _ = meter.Int64Counter("lat.rewards.operations")
	}
	minted, err := meter.Int64Counter("lat.rewards.minted")
	if err != nil {
		minted, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("lat.rewards.minted")
	}
	m.operationCounter = operations
	m.mintedCounter = minted
}

// ObserveOperation records one committed or rejected operation. errName is
// empty on success.
func (m *RewardsMetrics) ObserveOperation(operation, errName string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if errName != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, errName).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
	if m.operationCounter != nil {
		m.operationCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}

// RecordMinted adds amount to the minted total for source ("trade" or "stake").
func (m *RewardsMetrics) RecordMinted(source string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.minted.WithLabelValues(source).Add(float64(amount))
	if m.mintedCounter != nil && amount <= 1<<63-1 {
		m.mintedCounter.Add(context.Background(), int64(amount), metric.WithAttributes(attribute.String("source", source)))
	}
}

// Snapshot is the program-wide view refreshed periodically.
type Snapshot struct {
	TotalTrades       uint64
	PoolTradingVolume uint64
	EpochTradeVolume  uint64
	Participants      int
	VaultBalance      uint64
}

func (m *RewardsMetrics) SetSnapshot(s Snapshot) {
	if m == nil {
		return
	}
	m.totalTrades.Set(float64(s.TotalTrades))
	m.poolVolume.Set(float64(s.PoolTradingVolume))
	m.epochVolume.Set(float64(s.EpochTradeVolume))
	m.participants.Set(float64(s.Participants))
	m.vaultBalance.Set(float64(s.VaultBalance))
}
