package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus collectors the router daemon exposes at
// GET /metrics, grounded on the teacher's api/metrics.go MetricsCollector
// but retargeted from randomized dashboard gauges to auction, dispatch
// and per-chain health collectors. Only ChainHealthy and
// ChainLatestBlock are updated (by router.monitorChainHealth); the
// auction and dispatch collectors are registered, but nothing in
// evaluator/ or dispatcher/ updates them.
type Metrics struct {
	registry *prometheus.Registry

	AuctionsEvaluated    *prometheus.CounterVec
	AuctionsRejected     *prometheus.CounterVec
	DispatchesSent       *prometheus.CounterVec
	DispatchesFailed     *prometheus.CounterVec
	DispatchesDeadLetter *prometheus.CounterVec
	DispatchQueueDepth   *prometheus.GaugeVec
	ChainHealthy         *prometheus.GaugeVec
	ChainLatestBlock     *prometheus.GaugeVec
}

// NewMetrics builds a Metrics instance registered on a fresh registry,
// isolated from the default global registry so tests can construct
// multiple instances without collector-already-registered panics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		AuctionsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_auctions_evaluated_total",
			Help: "Number of auction requests evaluated.",
		}, []string{"sending_chain", "receiving_chain"}),
		AuctionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_auctions_rejected_total",
			Help: "Number of auction requests rejected, by reason kind.",
		}, []string{"kind"}),
		DispatchesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_dispatches_sent_total",
			Help: "Number of transactions successfully dispatched.",
		}, []string{"chain", "action"}),
		DispatchesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_dispatches_failed_total",
			Help: "Number of dispatch attempts that errored.",
		}, []string{"chain", "action", "kind"}),
		DispatchesDeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_dispatches_dead_letter_total",
			Help: "Number of dispatch actions moved to the dead letter store.",
		}, []string{"chain", "action"}),
		DispatchQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "router_dispatch_queue_depth",
			Help: "Current depth of each per-chain dispatch queue.",
		}, []string{"chain"}),
		ChainHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "router_chain_healthy",
			Help: "1 if the chain's last health check succeeded, 0 otherwise.",
		}, []string{"chain"}),
		ChainLatestBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "router_chain_latest_block",
			Help: "Latest block number observed on each configured chain.",
		}, []string{"chain"}),
	}

	registry.MustRegister(
		m.AuctionsEvaluated,
		m.AuctionsRejected,
		m.DispatchesSent,
		m.DispatchesFailed,
		m.DispatchesDeadLetter,
		m.DispatchQueueDepth,
		m.ChainHealthy,
		m.ChainLatestBlock,
	)
	return m
}

// Registry exposes the underlying prometheus.Registry for promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
