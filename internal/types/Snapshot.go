package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// VaultState is a point-in-time view of a vault's share accounting.
type VaultState struct {
	TotalAssets   sdkmath.Int `json:"total_assets"`
	TotalShares   sdkmath.Int `json:"total_shares"`
	TokenPerAsset sdkmath.Int `json:"token_per_asset"`
}

// AllocationState is a point-in-time view of a multi-strategy vault.
type AllocationState struct {
	Weights  []uint64      `json:"weights"`
	Holdings []sdkmath.Int `json:"holdings"`
}

// CycleSnapshot records everything a keeper cycle observed and did.
type CycleSnapshot struct {
	SnapshotID     int64     `json:"snapshot_id"`
	CycleNumber    int       `json:"cycle_number"`
	CycleID        string    `json:"cycle_id"`
	Timestamp      time.Time `json:"timestamp"`
	PolicyParamsID *int64    `json:"policy_params_id,omitempty"`

	// Pre-cycle state
	InitialVault    VaultState      `json:"initial_vault"`
	InitialPosition Position        `json:"initial_position"`
	InitialAlloc    AllocationState `json:"initial_allocation"`

	// The plan
	TargetWeights []uint64         `json:"target_weights,omitempty"`
	Adjustment    *AdjustPositions `json:"adjustment,omitempty"`

	// The outcome
	FinalVault    VaultState      `json:"final_vault"`
	FinalPosition Position        `json:"final_position"`
	FinalAlloc    AllocationState `json:"final_allocation"`
	VaultPnl      sdkmath.Int     `json:"vault_pnl"`
	MultiPnl      sdkmath.Int     `json:"multi_pnl"`
	Errors        []string        `json:"errors,omitempty"`
}
