package types

import (
	"time"
)

// YieldSample is one observation of a strategy's growth index. The index
// starts at 1 and is multiplied by (1 + pnl/assets) at every harvest.
type YieldSample struct {
	Timestamp time.Time `json:"timestamp"`
	Index     float64   `json:"index"`
}

// WeightParameters bound the target weights produced for a multi-strategy vault.
type WeightParameters struct {
	MinWeightBps          uint64  `json:"min_weight_bps"`
	MaxWeightBps          uint64  `json:"max_weight_bps"`
	RebalanceThresholdBps uint64  `json:"rebalance_threshold_bps"` // Drift below this is left alone.
	MaxMoveBps            uint64  `json:"max_move_bps"`            // Cap on capital withdrawn per cycle. Zero means no cap.
	AnnualizationFactor   float64 `json:"annualization_factor"`    // Samples per year.
	VolatilityPenalty     float64 `json:"volatility_penalty"`
}

// StrategyScore is the analyzer's view of one strategy.
type StrategyScore struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Yield      float64 `json:"yield"`      // Annualized mean log return.
	Volatility float64 `json:"volatility"` // Annualized standard deviation of log returns.
	Score      float64 `json:"score"`
	Samples    int     `json:"samples"`
}
