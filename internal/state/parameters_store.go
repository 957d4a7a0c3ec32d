// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/levvault/internal/types"
	"github.com/rs/zerolog/log"
)

var ErrNoActivePolicy = errors.New("no active policy parameters")

// SavePolicyParameters stores a new version of a strategy's policy. With
// makeActive the previous active version is deactivated in the same transaction.
func SavePolicyParameters(params types.PolicyParameters, strategyName string, version int, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.Exec(`UPDATE policy_parameters SET is_active = FALSE WHERE strategy_name = $1 AND is_active = TRUE;`, strategyName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", strategyName, err)
		}
	}

	stmt := `
		INSERT INTO policy_parameters (
			strategy_name, version, is_active, activated_at, created_at,
			target_ltv_ppb, max_ltv_ppb, loop_count, max_slippage_ppb, price_max_age_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING params_id;`

	now := time.Now()
	err = tx.QueryRow(
		stmt,
		strategyName, version, makeActive, now, now,
		int64(params.TargetLoanToValue), int64(params.MaxLoanToValue), int64(params.LoopCount),
		int64(params.MaxSlippage), int64(params.PriceMaxAge/time.Second),
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert policy parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("strategy", strategyName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved policy parameters")
	return paramsID, nil
}

// LoadActivePolicyParameters returns the active policy of a strategy with its id
// and version. ErrNoActivePolicy is returned when none was stored.
func LoadActivePolicyParameters(strategyName string) (types.PolicyParameters, int64, int, error) {
	if DB == nil {
		return types.PolicyParameters{}, 0, 0, ErrNotInitialized
	}

	query := `
		SELECT params_id, version, target_ltv_ppb, max_ltv_ppb, loop_count, max_slippage_ppb, price_max_age_seconds
		FROM policy_parameters
		WHERE strategy_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		id                                  int64
		version                             int
		target, maxLTV, loops, slip, maxAge int64
	)
	err := DB.QueryRow(query, strategyName).Scan(&id, &version, &target, &maxLTV, &loops, &slip, &maxAge)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PolicyParameters{}, 0, 0, fmt.Errorf("%w for strategy '%s'", ErrNoActivePolicy, strategyName)
	}
	if err != nil {
		return types.PolicyParameters{}, 0, 0, fmt.Errorf("failed to scan active policy parameters for strategy '%s': %w", strategyName, err)
	}

	p := types.PolicyParameters{
		TargetLoanToValue: uint64(target),
		MaxLoanToValue:    uint64(maxLTV),
		LoopCount:         uint64(loops),
		MaxSlippage:       uint64(slip),
		PriceMaxAge:       time.Duration(maxAge) * time.Second,
	}
	log.Info().Str("strategy", strategyName).Int("version", version).Msg("Loaded active policy parameters")
	return p, id, version, nil
}

// LatestPolicyVersion returns the highest stored version for a strategy, 0 if none.
func LatestPolicyVersion(strategyName string) (int, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}
	var version sql.NullInt64
	err := DB.QueryRow(`SELECT MAX(version) FROM policy_parameters WHERE strategy_name = $1;`, strategyName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest policy version for '%s': %w", strategyName, err)
	}
	return int(version.Int64), nil
}
