package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Strategy defines the interface a vault deploys capital through.
// Implementations pull deposits from the caller's allowance and must be
// owned by the vault that drives them.
type Strategy interface {
	// Address is the account holding the strategy's idle tokens.
	Address() common.Address

	// Asset is the denom the strategy accepts and returns.
	Asset() string

	// TotalAssets returns the equity recorded at the last deploy, undeploy or harvest.
	TotalAssets() sdkmath.Int

	// Deploy pulls amount of Asset from caller and puts it to work.
	Deploy(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error)

	// Undeploy releases amount of equity and sends the proceeds to caller.
	// The returned amount is what caller actually received.
	Undeploy(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error)

	// Harvest revalues the strategy and returns the signed change in equity.
	Harvest(ctx context.Context, caller common.Address) (sdkmath.Int, error)
}
