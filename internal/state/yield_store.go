package state

import (
	"fmt"

	"github.com/elys-network/levvault/internal/types"
)

// SaveYieldSample records one growth index observation for a strategy.
func SaveYieldSample(strategyName string, sample types.YieldSample) error {
	if DB == nil {
		return ErrNotInitialized
	}
	_, err := DB.Exec(`INSERT INTO yield_samples (strategy_name, sample_timestamp, growth_index) VALUES ($1, $2, $3);`,
		strategyName, sample.Timestamp, sample.Index)
	if err != nil {
		return fmt.Errorf("failed to save yield sample for %s: %w", strategyName, err)
	}
	return nil
}

// LoadYieldHistory returns up to limit of the latest samples of a strategy in
// chronological order.
func LoadYieldHistory(strategyName string, limit int) ([]types.YieldSample, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	rows, err := DB.Query(`
		SELECT sample_timestamp, growth_index FROM (
			SELECT sample_timestamp, growth_index
			FROM yield_samples
			WHERE strategy_name = $1
			ORDER BY sample_timestamp DESC
			LIMIT $2
		) latest ORDER BY sample_timestamp ASC;`, strategyName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query yield history for %s: %w", strategyName, err)
	}
	defer rows.Close()

	var out []types.YieldSample
	for rows.Next() {
		var s types.YieldSample
		if err := rows.Scan(&s.Timestamp, &s.Index); err != nil {
			return nil, fmt.Errorf("failed to scan yield sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
