package config

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// Asset configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DebtAsset is the denom vault depositors hold and strategies borrow.
	DebtAsset string
	// CollateralAsset is the denom the leveraged strategy supplies.
	CollateralAsset string
	// NativeAsset is the unwrapped form of DebtAsset handled by the router.
	NativeAsset string
	// LiquiditySeed is the number of whole units minted into each simulated venue.
	LiquiditySeed uint64
	// DemoDeposit is the number of whole units deposited into every vault at
	// startup. Zero leaves the vaults empty.
	DemoDeposit uint64
)

// loadAssetConfig loads asset configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadAssetConfig() error {
	log.Info().Msg("Loading asset configuration from environment variables...")

	DebtAsset = getEnvOrDefault("DEBT_ASSET", "weth")
	CollateralAsset = getEnvOrDefault("COLLATERAL_ASSET", "wsteth")
	NativeAsset = getEnvOrDefault("NATIVE_ASSET", "eth")
	if DebtAsset == CollateralAsset || DebtAsset == NativeAsset {
		return errors.New("DEBT_ASSET must differ from COLLATERAL_ASSET and NATIVE_ASSET")
	}

	LiquiditySeed = 100_000
	if _, err := getEnv("LIQUIDITY_SEED"); err == nil {
		seed, err := getEnvAsUint64("LIQUIDITY_SEED")
		if err != nil {
			return err
		}
		LiquiditySeed = seed
	}

	DemoDeposit = 0
	if _, err := getEnv("DEMO_DEPOSIT"); err == nil {
		deposit, err := getEnvAsUint64("DEMO_DEPOSIT")
		if err != nil {
			return err
		}
		DemoDeposit = deposit
	}

	log.Debug().
		Str("DebtAsset", DebtAsset).
		Str("CollateralAsset", CollateralAsset).
		Str("NativeAsset", NativeAsset).
		Uint64("LiquiditySeed", LiquiditySeed).
		Uint64("DemoDeposit", DemoDeposit).
		Msg("Asset configuration loaded successfully.")

	return nil
}
