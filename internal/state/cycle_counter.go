/*

This file manages the persistent cycle counter of each keeper.
The counter is stored in the database so cycle numbers continue across restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentCycleNumber retrieves the current cycle number of a keeper.
// A keeper that never ran is at cycle 0.
func GetCurrentCycleNumber(keeper string) (int, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	var currentCycle int
	err := DB.QueryRow(`SELECT current_cycle FROM cycle_counter WHERE keeper_name = $1;`, keeper).Scan(&currentCycle)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}

	log.Debug().Str("keeper", keeper).Int("currentCycle", currentCycle).Msg("Retrieved current cycle number")
	return currentCycle, nil
}

// IncrementCycleNumber increments the keeper's counter and returns the new value.
func IncrementCycleNumber(keeper string) (int, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	upsert := `
		INSERT INTO cycle_counter (keeper_name, current_cycle)
		VALUES ($1, 1)
		ON CONFLICT (keeper_name) DO UPDATE
		SET current_cycle = cycle_counter.current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING current_cycle;`

	var newCycle int
	if err := DB.QueryRow(upsert, keeper).Scan(&newCycle); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Info().Str("keeper", keeper).Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// ResetCycleNumber sets the keeper's counter to a specific value (for testing/maintenance)
func ResetCycleNumber(keeper string, cycleNumber int) error {
	if DB == nil {
		return ErrNotInitialized
	}
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	upsert := `
		INSERT INTO cycle_counter (keeper_name, current_cycle)
		VALUES ($1, $2)
		ON CONFLICT (keeper_name) DO UPDATE
		SET current_cycle = EXCLUDED.current_cycle,
		    updated_at = CURRENT_TIMESTAMP;`

	if _, err := DB.Exec(upsert, keeper, cycleNumber); err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}

	log.Warn().Str("keeper", keeper).Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
