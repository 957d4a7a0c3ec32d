package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/BurntSushi/toml"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/rs/zerolog/log"
)

// CurrentPolicyVersion is the layout written by this release. Version 1 files
// carried percentages as floats and are upgraded by MigratePolicy.
const CurrentPolicyVersion = 2

var ErrUnsupportedPolicyVersion = errors.New("unsupported policy file version")

// File is the TOML deployment description.
type File struct {
	Version uint64        `toml:"version"`
	Policy  PolicySection `toml:"policy"`
	Vault   VaultSection  `toml:"vault"`
	Multi   MultiSection  `toml:"multi"`
	Market  MarketSection `toml:"market"`

	// Legacy v1 keys, cleared by MigratePolicy.
	Legacy LegacyPolicy `toml:"legacy"`
}

type PolicySection struct {
	TargetLoanToValuePPB uint64   `toml:"target_ltv_ppb"`
	MaxLoanToValuePPB    uint64   `toml:"max_ltv_ppb"`
	LoopCount            uint64   `toml:"loop_count"`
	MaxSlippagePPB       uint64   `toml:"max_slippage_ppb"`
	PriceMaxAge          Duration `toml:"price_max_age"`
}

// LegacyPolicy is the v1 policy layout.
type LegacyPolicy struct {
	TargetLoanToValuePercent float64 `toml:"target_ltv_percent"`
	MaxLoanToValuePercent    float64 `toml:"max_ltv_percent"`
	MaxSlippagePercent       float64 `toml:"max_slippage_percent"`
	PriceMaxAgeSeconds       uint64  `toml:"price_max_age_seconds"`
}

type VaultSection struct {
	Name                 string `toml:"name"`
	StrategyName         string `toml:"strategy_name"`
	PerformanceFeeBps    uint64 `toml:"performance_fee_bps"`
	WithdrawalFeeBps     uint64 `toml:"withdrawal_fee_bps"`
	MaxDepositPerAccount string `toml:"max_deposit_per_account"`
	MaxTotalDeposits     string `toml:"max_total_deposits"`
}

type MultiSection struct {
	Name                  string   `toml:"name"`
	Strategies            []string `toml:"strategies"`
	Weights               []uint64 `toml:"weights"`
	PerformanceFeeBps     uint64   `toml:"performance_fee_bps"`
	WithdrawalFeeBps      uint64   `toml:"withdrawal_fee_bps"`
	MinWeightBps          uint64   `toml:"min_weight_bps"`
	MaxWeightBps          uint64   `toml:"max_weight_bps"`
	RebalanceThresholdBps uint64   `toml:"rebalance_threshold_bps"`
	YieldLookback         int      `toml:"yield_lookback"`
	MaxMoveBps            uint64   `toml:"max_move_bps"`
	VolatilityPenalty     float64  `toml:"volatility_penalty"`
}

type MarketSection struct {
	CollateralPrice         string `toml:"collateral_price"`
	LoanToValuePPB          uint64 `toml:"ltv_ppb"`
	LiquidationThresholdPPB uint64 `toml:"liquidation_threshold_ppb"`
	FlashLoanFeeBps         uint64 `toml:"flash_loan_fee_bps"`
	SwapFeeBps              uint64 `toml:"swap_fee_bps"`

	// Simulated interest credited once per keeper cycle.
	CollateralYieldBps uint64 `toml:"collateral_yield_bps"`
	SupplyRateBps      uint64 `toml:"supply_rate_bps"`
	BorrowRateBps      uint64 `toml:"borrow_rate_bps"`
}

// Duration decodes TOML strings such as "1h" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadPolicyFile reads a deployment file, migrates it to the current version,
// fills unset values from the defaults and validates the result. An empty path
// returns DefaultFile.
func LoadPolicyFile(path string) (File, error) {
	if path == "" {
		log.Info().Msg("No policy file configured, using default deployment parameters")
		return DefaultFile(), nil
	}

	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return File{}, fmt.Errorf("decode policy file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warn().Str("file", path).Interface("keys", undecoded).Msg("Ignoring unknown policy keys")
	}

	from := f.Version
	if err := MigratePolicy(&f); err != nil {
		return File{}, err
	}
	applyDefaults(&f)
	if err := f.Validate(); err != nil {
		return File{}, err
	}

	log.Info().
		Str("file", path).
		Uint64("fromVersion", from).
		Uint64("version", f.Version).
		Msg("Policy file loaded")
	return f, nil
}

// MigratePolicy upgrades f in place to CurrentPolicyVersion. A missing version
// is read as version 1.
func MigratePolicy(f *File) error {
	if f.Version == 0 {
		f.Version = 1
	}
	if f.Version > CurrentPolicyVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedPolicyVersion, f.Version)
	}

	for f.Version < CurrentPolicyVersion {
		switch f.Version {
		case 1:
			if err := migrateV1(f); err != nil {
				return err
			}
		}
		f.Version++
	}
	return nil
}

// v1 stored percentages; 1% is 1e7 parts-per-billion.
func migrateV1(f *File) error {
	l := f.Legacy
	for _, m := range []struct {
		percent float64
		dst     *uint64
	}{
		{l.TargetLoanToValuePercent, &f.Policy.TargetLoanToValuePPB},
		{l.MaxLoanToValuePercent, &f.Policy.MaxLoanToValuePPB},
		{l.MaxSlippagePercent, &f.Policy.MaxSlippagePPB},
	} {
		if m.percent == 0 {
			continue
		}
		ppb, err := utils.Float64ToSDKInt(m.percent, 7)
		if err != nil {
			return fmt.Errorf("migrate v1 policy: %w", err)
		}
		*m.dst = ppb.Uint64()
	}
	if l.PriceMaxAgeSeconds > 0 {
		f.Policy.PriceMaxAge = Duration{time.Duration(l.PriceMaxAgeSeconds) * time.Second}
	}
	f.Legacy = LegacyPolicy{}
	return nil
}

func applyDefaults(f *File) {
	d := DefaultFile()

	if f.Policy.TargetLoanToValuePPB == 0 {
		f.Policy.TargetLoanToValuePPB = d.Policy.TargetLoanToValuePPB
	}
	if f.Policy.MaxLoanToValuePPB == 0 {
		f.Policy.MaxLoanToValuePPB = d.Policy.MaxLoanToValuePPB
	}
	if f.Policy.LoopCount == 0 {
		f.Policy.LoopCount = d.Policy.LoopCount
	}
	if f.Policy.MaxSlippagePPB == 0 {
		f.Policy.MaxSlippagePPB = d.Policy.MaxSlippagePPB
	}
	if f.Policy.PriceMaxAge.Duration == 0 {
		f.Policy.PriceMaxAge = d.Policy.PriceMaxAge
	}

	if f.Vault.Name == "" {
		f.Vault.Name = d.Vault.Name
	}
	if f.Vault.StrategyName == "" {
		f.Vault.StrategyName = d.Vault.StrategyName
	}

	if f.Multi.Name == "" {
		f.Multi.Name = d.Multi.Name
	}
	if len(f.Multi.Strategies) == 0 {
		f.Multi.Strategies = d.Multi.Strategies
		f.Multi.Weights = d.Multi.Weights
	}
	if f.Multi.MaxWeightBps == 0 {
		f.Multi.MaxWeightBps = types.BasisPointScale
	}
	if f.Multi.RebalanceThresholdBps == 0 {
		f.Multi.RebalanceThresholdBps = d.Multi.RebalanceThresholdBps
	}
	if f.Multi.YieldLookback == 0 {
		f.Multi.YieldLookback = d.Multi.YieldLookback
	}

	// Fees and rates may legitimately be zero, so an absent table takes every default.
	if f.Market == (MarketSection{}) {
		f.Market = d.Market
	}
	if f.Market.CollateralPrice == "" {
		f.Market.CollateralPrice = d.Market.CollateralPrice
	}
	if f.Market.LoanToValuePPB == 0 {
		f.Market.LoanToValuePPB = d.Market.LoanToValuePPB
	}
	if f.Market.LiquidationThresholdPPB == 0 {
		f.Market.LiquidationThresholdPPB = d.Market.LiquidationThresholdPPB
	}
}

// PolicyParameters returns the policy section in engine form.
func (f File) PolicyParameters() types.PolicyParameters {
	return types.PolicyParameters{
		TargetLoanToValue: f.Policy.TargetLoanToValuePPB,
		MaxLoanToValue:    f.Policy.MaxLoanToValuePPB,
		LoopCount:         f.Policy.LoopCount,
		MaxSlippage:       f.Policy.MaxSlippagePPB,
		PriceMaxAge:       f.Policy.PriceMaxAge.Duration,
	}
}

// WeightParameters returns the multi section in planner form. Yields are
// annualized assuming one sample per keeper interval.
func (f File) WeightParameters(interval time.Duration) types.WeightParameters {
	factor := 1.0
	if interval > 0 {
		factor = float64(365*24*time.Hour) / float64(interval)
	}
	return types.WeightParameters{
		MinWeightBps:          f.Multi.MinWeightBps,
		MaxWeightBps:          f.Multi.MaxWeightBps,
		RebalanceThresholdBps: f.Multi.RebalanceThresholdBps,
		MaxMoveBps:            f.Multi.MaxMoveBps,
		AnnualizationFactor:   factor,
		VolatilityPenalty:     f.Multi.VolatilityPenalty,
	}
}

// Validate checks every section. Deposit caps are decimal integers; empty
// means unlimited.
func (f File) Validate() error {
	if f.Version != CurrentPolicyVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedPolicyVersion, f.Version)
	}
	if err := f.PolicyParameters().Validate(); err != nil {
		return err
	}

	var errs []error
	if f.Vault.PerformanceFeeBps >= types.BasisPointScale || f.Vault.WithdrawalFeeBps >= types.BasisPointScale {
		errs = append(errs, fmt.Errorf("%w: vault fees must be below %d bps", types.ErrInvalidPolicy, types.BasisPointScale))
	}
	if f.Multi.PerformanceFeeBps >= types.BasisPointScale || f.Multi.WithdrawalFeeBps >= types.BasisPointScale {
		errs = append(errs, fmt.Errorf("%w: multi fees must be below %d bps", types.ErrInvalidPolicy, types.BasisPointScale))
	}
	for _, c := range []struct{ key, value string }{
		{"max_deposit_per_account", f.Vault.MaxDepositPerAccount},
		{"max_total_deposits", f.Vault.MaxTotalDeposits},
	} {
		if _, err := parseCap(c.value); err != nil {
			errs = append(errs, fmt.Errorf("vault.%s: %w", c.key, err))
		}
	}
	if len(f.Multi.Strategies) != len(f.Multi.Weights) {
		errs = append(errs, fmt.Errorf("%w: %d strategies, %d weights", types.ErrInvalidWeightsLength, len(f.Multi.Strategies), len(f.Multi.Weights)))
	}
	var total uint64
	for _, w := range f.Multi.Weights {
		total += w
	}
	if total == 0 || total > types.BasisPointScale {
		errs = append(errs, fmt.Errorf("%w: weights sum to %d", types.ErrInvalidWeights, total))
	}
	if f.Multi.MinWeightBps > f.Multi.MaxWeightBps || f.Multi.MaxWeightBps > types.BasisPointScale {
		errs = append(errs, fmt.Errorf("%w: weight bounds [%d, %d]", types.ErrInvalidWeights, f.Multi.MinWeightBps, f.Multi.MaxWeightBps))
	}
	if f.Multi.MaxMoveBps > types.BasisPointScale || f.Multi.VolatilityPenalty < 0 {
		errs = append(errs, fmt.Errorf("%w: max move %d bps, volatility penalty %f", types.ErrInvalidWeights, f.Multi.MaxMoveBps, f.Multi.VolatilityPenalty))
	}
	if f.Multi.MinWeightBps*uint64(len(f.Multi.Strategies)) > types.BasisPointScale {
		errs = append(errs, fmt.Errorf("%w: min weight %d cannot hold for %d strategies", types.ErrInvalidWeights, f.Multi.MinWeightBps, len(f.Multi.Strategies)))
	}
	if _, err := sdkmath.LegacyNewDecFromStr(f.Market.CollateralPrice); err != nil {
		errs = append(errs, fmt.Errorf("market.collateral_price: %w", err))
	}
	if f.Market.LoanToValuePPB > f.Market.LiquidationThresholdPPB || f.Market.LiquidationThresholdPPB >= types.LoanToValueScale {
		errs = append(errs, fmt.Errorf("%w: market ltv %d, threshold %d", types.ErrInvalidLoanToValue, f.Market.LoanToValuePPB, f.Market.LiquidationThresholdPPB))
	}
	return errors.Join(errs...)
}

// VaultCaps returns the single-vault deposit caps; zero means unlimited.
func (f File) VaultCaps() (perAccount, total sdkmath.Int) {
	perAccount, _ = parseCap(f.Vault.MaxDepositPerAccount)
	total, _ = parseCap(f.Vault.MaxTotalDeposits)
	return perAccount, total
}

func parseCap(s string) (sdkmath.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(s)
	if !ok || v.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
