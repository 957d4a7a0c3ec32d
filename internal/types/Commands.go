/*

This file contains the rebalance commands consumed by the multi-strategy vault.
Commands are built fresh per call and never persisted on the ledger.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// RebalanceActionType names a rebalance command.
type RebalanceActionType string

const (
	RebalanceSetWeights      RebalanceActionType = "SET_WEIGHTS"
	RebalanceAdjustPositions RebalanceActionType = "ADJUST_POSITIONS"
	RebalanceHarvest         RebalanceActionType = "HARVEST"
)

// RebalanceCommand is one step of a multi-strategy rebalance.
type RebalanceCommand interface {
	Action() RebalanceActionType
}

// SetWeights replaces the weight vector. Weights are in basis points.
type SetWeights struct {
	Weights []uint64 `json:"weights"`
}

func (SetWeights) Action() RebalanceActionType { return RebalanceSetWeights }

// AdjustPositions moves capital between strategies. Negative deltas withdraw,
// positive deltas deposit. Deltas are sorted ascending and sum to zero.
type AdjustPositions struct {
	Indices []int         `json:"indices"`
	Deltas  []sdkmath.Int `json:"deltas"`
}

func (AdjustPositions) Action() RebalanceActionType { return RebalanceAdjustPositions }

// Harvest harvests every strategy and mints the performance fee.
type Harvest struct{}

func (Harvest) Action() RebalanceActionType { return RebalanceHarvest }

// RebalanceReport summarizes what a rebalance did.
type RebalanceReport struct {
	Actions        []RebalanceActionType `json:"actions"`
	HarvestPnl     []sdkmath.Int         `json:"harvest_pnl,omitempty"` // per strategy, signed
	TotalPnl       sdkmath.Int           `json:"total_pnl"`
	FeeShares      sdkmath.Int           `json:"fee_shares"`
	AssetsMoved    sdkmath.Int           `json:"assets_moved"`
	WeightsApplied []uint64              `json:"weights_applied,omitempty"`
}
