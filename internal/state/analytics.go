package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

var ErrCycleNotFound = errors.New("cycle not found")

// CycleSummary is the persisted view of the keeper's history.
type CycleSummary struct {
	TotalCycles         int         `json:"total_cycles"`
	FailedCycles        int         `json:"failed_cycles"`
	TotalVaultPnl       sdkmath.Int `json:"total_vault_pnl"`
	TotalMultiPnl       sdkmath.Int `json:"total_multi_pnl"`
	LatestTotalAssets   sdkmath.Int `json:"latest_total_assets"`
	LatestTokenPerAsset sdkmath.Int `json:"latest_token_per_asset"`
	LastUpdated         *time.Time  `json:"last_updated,omitempty"`
}

const snapshotColumns = `
	snapshot_id, cycle_number, cycle_id, snapshot_timestamp, policy_params_id,
	initial_vault, initial_position, initial_allocation,
	target_weights, adjustment,
	final_vault, final_position, final_allocation,
	vault_pnl::TEXT, multi_pnl::TEXT, errors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (types.CycleSnapshot, error) {
	var (
		c                                           types.CycleSnapshot
		initialVault, initialPosition, initialAlloc []byte
		finalVault, finalPosition, finalAlloc       []byte
		adjustment                                  []byte
		weights                                     []int64
		vaultPnl, multiPnl                          string
		policyID                                    sql.NullInt64
	)
	err := row.Scan(
		&c.SnapshotID, &c.CycleNumber, &c.CycleID, &c.Timestamp, &policyID,
		&initialVault, &initialPosition, &initialAlloc,
		pq.Array(&weights), &adjustment,
		&finalVault, &finalPosition, &finalAlloc,
		&vaultPnl, &multiPnl, pq.Array(&c.Errors),
	)
	if err != nil {
		return types.CycleSnapshot{}, err
	}
	if policyID.Valid {
		id := policyID.Int64
		c.PolicyParamsID = &id
	}
	c.TargetWeights = toUint64s(weights)

	for _, f := range []struct {
		name string
		src  []byte
		dst  any
	}{
		{"initial_vault", initialVault, &c.InitialVault},
		{"initial_position", initialPosition, &c.InitialPosition},
		{"initial_allocation", initialAlloc, &c.InitialAlloc},
		{"final_vault", finalVault, &c.FinalVault},
		{"final_position", finalPosition, &c.FinalPosition},
		{"final_allocation", finalAlloc, &c.FinalAlloc},
	} {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return types.CycleSnapshot{}, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}
	if len(adjustment) > 0 {
		c.Adjustment = &types.AdjustPositions{}
		if err := json.Unmarshal(adjustment, c.Adjustment); err != nil {
			return types.CycleSnapshot{}, fmt.Errorf("failed to unmarshal adjustment: %w", err)
		}
	}
	if c.VaultPnl, err = parseNumeric(vaultPnl); err != nil {
		return types.CycleSnapshot{}, err
	}
	if c.MultiPnl, err = parseNumeric(multiPnl); err != nil {
		return types.CycleSnapshot{}, err
	}
	return c, nil
}

// GetRecentCycles retrieves recent cycle snapshots, newest first.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.Query(`SELECT `+snapshotColumns+` FROM cycle_snapshots ORDER BY snapshot_timestamp DESC LIMIT $1`, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		cycle, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		cycles = append(cycles, cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a specific cycle by its snapshot id.
func GetCycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	cycle, err := scanSnapshot(DB.QueryRow(`SELECT `+snapshotColumns+` FROM cycle_snapshots WHERE snapshot_id = $1`, snapshotID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrCycleNotFound, snapshotID)
	}
	if err != nil {
		log.Error().Err(err).Int64("snapshot_id", snapshotID).Msg("Failed to query cycle by ID")
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}
	return &cycle, nil
}

// GetCycleSummary aggregates the stored cycles.
func GetCycleSummary() (*CycleSummary, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	var vaultPnl, multiPnl string
	summary := &CycleSummary{}
	err := DB.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN cardinality(errors) > 0 THEN 1 END),
			COALESCE(SUM(vault_pnl), 0)::TEXT,
			COALESCE(SUM(multi_pnl), 0)::TEXT
		FROM cycle_snapshots`).Scan(&summary.TotalCycles, &summary.FailedCycles, &vaultPnl, &multiPnl)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cycles: %w", err)
	}
	if summary.TotalVaultPnl, err = parseNumeric(vaultPnl); err != nil {
		return nil, err
	}
	if summary.TotalMultiPnl, err = parseNumeric(multiPnl); err != nil {
		return nil, err
	}

	var totalAssets, tokenPerAsset string
	var ts time.Time
	err = DB.QueryRow(`
		SELECT final_total_assets::TEXT, final_token_per_asset::TEXT, snapshot_timestamp
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1`).Scan(&totalAssets, &tokenPerAsset, &ts)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		summary.LatestTotalAssets = sdkmath.ZeroInt()
		summary.LatestTokenPerAsset = sdkmath.ZeroInt()
	case err != nil:
		return nil, fmt.Errorf("failed to get latest vault values: %w", err)
	default:
		summary.LastUpdated = &ts
		if summary.LatestTotalAssets, err = parseNumeric(totalAssets); err != nil {
			return nil, err
		}
		if summary.LatestTokenPerAsset, err = parseNumeric(tokenPerAsset); err != nil {
			return nil, err
		}
	}

	log.Debug().Int("totalCycles", summary.TotalCycles).Msg("Retrieved cycle summary")
	return summary, nil
}
