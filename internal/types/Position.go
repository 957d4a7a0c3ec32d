package types

import (
	sdkmath "cosmossdk.io/math"
)

// Position is a collateral/debt pair valued in debt-asset units.
// LoanToValue is DebtValue/CollateralValue in parts-per-billion.
type Position struct {
	CollateralValue sdkmath.Int `json:"collateral_value"`
	DebtValue       sdkmath.Int `json:"debt_value"`
	LoanToValue     uint64      `json:"loan_to_value"`
}

// EmptyPosition returns a position with zeroed legs.
func EmptyPosition() Position {
	return Position{CollateralValue: sdkmath.ZeroInt(), DebtValue: sdkmath.ZeroInt()}
}

// Equity is the collateral value net of debt. It is negative for an
// undercollateralized position.
func (p Position) Equity() sdkmath.Int {
	return p.CollateralValue.Sub(p.DebtValue)
}

// IsEmpty reports whether the position holds neither collateral nor debt.
func (p Position) IsEmpty() bool {
	return p.CollateralValue.IsZero() && p.DebtValue.IsZero()
}
