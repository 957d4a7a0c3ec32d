// Package metrics exposes the keeper's view of the vaults to Prometheus.
package metrics

import (
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// AssetDecimals converts 18-decimal amounts to whole units for gauges.
const AssetDecimals = 18

type Metrics struct {
	totalAssets   *prometheus.GaugeVec
	tokenPerAsset *prometheus.GaugeVec
	harvestPnl    *prometheus.GaugeVec
	loanToValue   *prometheus.GaugeVec
	weights       *prometheus.GaugeVec
	holdings      *prometheus.GaugeVec
	reverts       prometheus.Gauge
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the metrics registered on the default Prometheus registry,
// together with the Go and process collectors.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates the keeper metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		totalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levvault_total_assets",
			Help: "Assets under management per vault, in whole units of the vault asset.",
		}, []string{"vault"}),
		tokenPerAsset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levvault_token_per_asset",
			Help: "Assets backing one whole share per vault.",
		}, []string{"vault"}),
		harvestPnl: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levvault_harvest_pnl",
			Help: "Signed pnl of the latest harvest per vault, in whole units.",
		}, []string{"vault"}),
		loanToValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levvault_loan_to_value_ratio",
			Help: "Debt over collateral of each leveraged strategy.",
		}, []string{"strategy"}),
		weights: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levvault_strategy_weight_bps",
			Help: "Configured weight of each strategy in a multi-strategy vault.",
		}, []string{"vault", "strategy"}),
		holdings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levvault_strategy_holdings",
			Help: "Assets held by each strategy of a multi-strategy vault, in whole units.",
		}, []string{"vault", "strategy"}),
		reverts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "levvault_reverted_operations",
			Help: "Operations rolled back by the runtime since start.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levvault_keeper_cycles_total",
			Help: "Keeper cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "levvault_keeper_cycle_duration_seconds",
			Help:    "Wall time of a keeper cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.totalAssets, m.tokenPerAsset, m.harvestPnl, m.loanToValue,
		m.weights, m.holdings, m.reverts, m.cycles, m.cycleDuration,
	)
	if reg == prometheus.DefaultRegisterer {
		// The default registry already carries the Go and process collectors.
		return m
	}
	_ = reg.Register(collectors.NewGoCollector())
	return m
}

func units(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, err := utils.SDKIntToFloat64(v, AssetDecimals)
	if err != nil {
		log.Warn().Err(err).Str("value", v.String()).Msg("Metric value out of range")
		return 0
	}
	return f
}

func (m *Metrics) ObserveVault(vault string, totalAssets, tokenPerAsset sdkmath.Int) {
	if m == nil {
		return
	}
	m.totalAssets.WithLabelValues(vault).Set(units(totalAssets))
	m.tokenPerAsset.WithLabelValues(vault).Set(units(tokenPerAsset))
}

func (m *Metrics) ObserveHarvest(vault string, pnl sdkmath.Int) {
	if m == nil {
		return
	}
	m.harvestPnl.WithLabelValues(vault).Set(units(pnl))
}

// ObserveLoanToValue records a strategy's LTV given in parts-per-billion.
func (m *Metrics) ObserveLoanToValue(strategy string, ppb uint64) {
	if m == nil {
		return
	}
	m.loanToValue.WithLabelValues(strategy).Set(float64(ppb) / 1e9)
}

func (m *Metrics) ObserveAllocation(vault string, strategies []string, weights []uint64, holdings []sdkmath.Int) {
	if m == nil {
		return
	}
	m.weights.DeletePartialMatch(prometheus.Labels{"vault": vault})
	m.holdings.DeletePartialMatch(prometheus.Labels{"vault": vault})
	for i, name := range strategies {
		if i < len(weights) {
			m.weights.WithLabelValues(vault, name).Set(float64(weights[i]))
		}
		if i < len(holdings) {
			m.holdings.WithLabelValues(vault, name).Set(units(holdings[i]))
		}
	}
}

func (m *Metrics) ObserveReverts(n uint64) {
	if m == nil {
		return
	}
	m.reverts.Set(float64(n))
}

// ObserveCycle counts a finished keeper cycle. A cycle with errors is "failed".
func (m *Metrics) ObserveCycle(seconds float64, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(seconds)
}
