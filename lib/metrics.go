package lib

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* This file implements dev-ops telemetry for the node in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics represents a server that exposes Prometheus metrics
type Metrics struct {
	server *http.Server  // the http prometheus server
	config MetricsConfig // the configuration
	log    LoggerI       // the logger

	NodeMetrics  // general telemetry about the node
	PoolMetrics  // pool ledger telemetry
	SwapMetrics  // swap flow telemetry
	StoreMetrics // persistence telemetry
}

// NodeMetrics represents general telemetry for the node's health
type NodeMetrics struct {
	NodeStatus             prometheus.Gauge     // is the node alive?
	EngineTick             prometheus.Gauge     // the engine's current tick
	EnvelopeProcessingTime prometheus.Histogram // how long does it take this node to apply an envelope?
	QueueCount             prometheus.Gauge     // envelopes waiting in the arrival queue
	QueueBytes             prometheus.Gauge     // total bytes waiting in the arrival queue
}

// PoolMetrics represents the telemetry for the pool ledgers
type PoolMetrics struct {
	PoolCount   prometheus.Gauge     // number of initialized pools
	ReserveA    *prometheus.GaugeVec // tracked reserve of the first asset per pool
	ReserveB    *prometheus.GaugeVec // tracked reserve of the second asset per pool
	ClaimSupply *prometheus.GaugeVec // outstanding claim supply per pool
}

// SwapMetrics represents the telemetry for the swap engine
type SwapMetrics struct {
	SwapCount     *prometheus.CounterVec // how many swaps has each pool executed?
	SwapVolume    *prometheus.CounterVec // cumulative measured input per pool and asset
	SwapRejected  prometheus.Counter     // swaps rejected by the constant product check
	FeeShareMints prometheus.Counter     // protocol fee-share mints
}

// StoreMetrics represents the telemetry of the persistence layer
type StoreMetrics struct {
	CommitTime    prometheus.Histogram // how long does a version commit take?
	CommitEntries prometheus.Gauge     // entries written in the last commit
}

// NewMetricsServer() creates a new telemetry server
func NewMetricsServer(config MetricsConfig) *Metrics {
	mux := http.NewServeMux()
	mux.Handle(metricsPattern, promhttp.Handler())
	return &Metrics{
		server: &http.Server{Addr: config.PrometheusAddress, Handler: mux},
		config: config,
		log:    NewDefaultLogger(),
		NodeMetrics: NodeMetrics{
			NodeStatus: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "millpond_node_status",
				Help: "The node is alive and applying envelopes",
			}),
			EngineTick: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "millpond_engine_tick",
				Help: "Current engine tick",
			}),
			EnvelopeProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
				Name: "millpond_envelope_processing_time",
				Help: "Time to apply an envelope in seconds",
			}),
			QueueCount: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "millpond_queue_envelope_total",
				Help: "Envelopes waiting in the arrival queue",
			}),
			QueueBytes: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "millpond_queue_bytes",
				Help: "Total bytes waiting in the arrival queue",
			}),
		},
		PoolMetrics: PoolMetrics{
			PoolCount: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "millpond_pool_total",
				Help: "Number of initialized pools",
			}),
			ReserveA: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "millpond_pool_reserve_a",
				Help: "Tracked reserve of the first asset of the pair",
			}, []string{"pool"}),
			ReserveB: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "millpond_pool_reserve_b",
				Help: "Tracked reserve of the second asset of the pair",
			}, []string{"pool"}),
			ClaimSupply: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "millpond_pool_claim_supply",
				Help: "Outstanding claim token supply",
			}, []string{"pool"}),
		},
		SwapMetrics: SwapMetrics{
			SwapCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "millpond_swap_count",
				Help: "Number of executed swaps",
			}, []string{"pool"}),
			SwapVolume: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "millpond_swap_volume",
				Help: "Cumulative measured swap input",
			}, []string{"pool", "asset"}),
			SwapRejected: promauto.NewCounter(prometheus.CounterOpts{
				Name: "millpond_swap_rejected",
				Help: "Swaps rejected by the constant product check",
			}),
			FeeShareMints: promauto.NewCounter(prometheus.CounterOpts{
				Name: "millpond_fee_share_mints",
				Help: "Number of protocol fee-share mints",
			}),
		},
		StoreMetrics: StoreMetrics{
			CommitTime: promauto.NewHistogram(prometheus.HistogramOpts{
				Name: "millpond_store_commit_time",
				Help: "Time to commit a version in seconds",
			}),
			CommitEntries: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "millpond_store_commit_entries",
				Help: "Entries written in the last commit",
			}),
		},
	}
}

// Start() starts the telemetry server
func (m *Metrics) Start() {
	// exit if empty
	if m == nil {
		return
	}
	// if the metrics server is enabled
	if m.config.Enabled {
		go func() {
			m.log.Infof("Starting metrics server on %s", m.config.PrometheusAddress)
			// run the server
			if err := m.server.ListenAndServe(); err != nil {
				if err != http.ErrServerClosed {
					m.log.Errorf("Metrics server failed with err: %s", err.Error())
				}
			}
		}()
	}
}

// Stop() gracefully stops the telemetry server
func (m *Metrics) Stop() {
	// exit if empty
	if m == nil {
		return
	}
	// if the metrics server isn't enabled
	if m.config.Enabled {
		// shutdown the server
		if err := m.server.Shutdown(context.Background()); err != nil {
			m.log.Error(err.Error())
		}
	}
}

// UpdateNodeMetrics() updates the liveness and tick telemetry
func (m *Metrics) UpdateNodeMetrics(tick uint32) {
	// exit if empty
	if m == nil {
		return
	}
	// set node is active
	m.NodeStatus.Set(1)
	// update the engine tick
	m.EngineTick.Set(float64(tick))
}

// UpdatePoolMetrics() is a setter for the per-pool ledger telemetry
func (m *Metrics) UpdatePoolMetrics(pool string, reserveA, reserveB, claimSupply float64) {
	// exit if empty
	if m == nil {
		return
	}
	// set the tracked reserves for the pool
	m.ReserveA.WithLabelValues(pool).Set(reserveA)
	m.ReserveB.WithLabelValues(pool).Set(reserveB)
	// set the outstanding claim supply for the pool
	m.ClaimSupply.WithLabelValues(pool).Set(claimSupply)
}

// UpdatePoolCount() is a setter for the number of initialized pools
func (m *Metrics) UpdatePoolCount(count int) {
	// exit if empty
	if m == nil {
		return
	}
	m.PoolCount.Set(float64(count))
}

// UpdateSwapMetrics() updates the swap flow telemetry
func (m *Metrics) UpdateSwapMetrics(pool, asset string, amountIn float64) {
	// exit if empty
	if m == nil {
		return
	}
	// update the number of swaps executed by the pool
	m.SwapCount.WithLabelValues(pool).Inc()
	// update the measured input volume
	m.SwapVolume.WithLabelValues(pool, asset).Add(amountIn)
}

// UpdateSwapRejected() counts a swap that failed the constant product check
func (m *Metrics) UpdateSwapRejected() {
	// exit if empty
	if m == nil {
		return
	}
	m.SwapRejected.Inc()
}

// UpdateFeeShareMetrics() counts a protocol fee-share mint
func (m *Metrics) UpdateFeeShareMetrics() {
	// exit if empty
	if m == nil {
		return
	}
	m.FeeShareMints.Inc()
}

// UpdateQueueMetrics() updates the arrival queue telemetry
func (m *Metrics) UpdateQueueMetrics(count, queueBytes int) {
	// exit if empty
	if m == nil {
		return
	}
	// record the envelopes and bytes currently queued
	m.QueueCount.Set(float64(count))
	m.QueueBytes.Set(float64(queueBytes))
}

// UpdateEnvelopeMetrics() updates the telemetry about the last applied envelope
func (m *Metrics) UpdateEnvelopeMetrics(duration time.Duration) {
	// exit if empty
	if m == nil {
		return
	}
	// update the envelope processing time in seconds
	m.EnvelopeProcessingTime.Observe(duration.Seconds())
}

// UpdateStoreMetrics() updates the telemetry about the last commit
func (m *Metrics) UpdateStoreMetrics(entries int64, startTime time.Time) {
	// exit if empty
	if m == nil {
		return
	}
	// record the entries written and the time the commit took
	m.CommitEntries.Set(float64(entries))
	m.CommitTime.Observe(time.Since(startTime).Seconds())
}
