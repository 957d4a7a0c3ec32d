package types

import "errors"

// Protocol errors. Every one of them aborts the operation that raised it and
// rolls back all state touched inside the enclosing transaction.
var (
	ErrInvalidDeployAmount        = errors.New("invalid deploy amount")
	ErrInvalidLoanToValue         = errors.New("invalid loan to value")
	ErrInvalidNumberOfLoops       = errors.New("invalid number of loops")
	ErrInvalidPercentageValue     = errors.New("invalid percentage value")
	ErrNoCollateralMarginToScale  = errors.New("no collateral margin to scale")
	ErrCollateralLowerThanDebt    = errors.New("collateral lower than debt")
	ErrPriceOutdated              = errors.New("price outdated")
	ErrInvalidFlashLoanSender     = errors.New("invalid flash loan sender")
	ErrInvalidFlashLoanAsset      = errors.New("invalid flash loan asset")
	ErrFailedToAuthenticateArgs   = errors.New("failed to authenticate flash loan args")
	ErrInvalidDepositAmount       = errors.New("invalid deposit amount")
	ErrMaxDepositReached          = errors.New("max deposit reached")
	ErrNotEnoughBalanceToWithdraw = errors.New("not enough balance to withdraw")
	ErrInvalidShareBalance        = errors.New("invalid share balance")
	ErrInvalidWeights             = errors.New("invalid weights")
	ErrInvalidWeightsLength       = errors.New("invalid weights length")
	ErrInvalidDeltas              = errors.New("invalid deltas")
	ErrInvalidStrategyIndex       = errors.New("invalid strategy index")
	ErrRouteNotAuthorized         = errors.New("route not authorized")
	ErrNoPermissions              = errors.New("no permissions")
)

var (
	ErrMaxLoanToValueExceeded = errors.New("max loan to value exceeded")
	ErrInvalidPolicy          = errors.New("invalid policy parameters")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientAllowance  = errors.New("insufficient allowance")
	ErrUnknownCommand         = errors.New("unknown command")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrInvalidAssetsState     = errors.New("vault has shares but no assets")
	ErrAssetMismatch          = errors.New("asset mismatch")
	ErrPermitExpired          = errors.New("permit expired")
	ErrInvalidPermit          = errors.New("invalid permit signature")
	ErrInvalidStackSlot       = errors.New("invalid stack slot")
	ErrUnknownVault           = errors.New("vault not registered")
)
