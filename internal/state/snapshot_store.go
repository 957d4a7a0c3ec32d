// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	docs, err := marshalSnapshotDocs(snapshot)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, policy_params_id,
			initial_vault, initial_position, initial_allocation,
			target_weights, adjustment,
			final_vault, final_position, final_allocation,
			final_total_assets, final_token_per_asset, vault_pnl, multi_pnl, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, snapshot.PolicyParamsID,
		docs.initialVault, docs.initialPosition, docs.initialAlloc,
		pq.Array(toInt64s(snapshot.TargetWeights)), docs.adjustment,
		docs.finalVault, docs.finalPosition, docs.finalAlloc,
		numeric(snapshot.FinalVault.TotalAssets), numeric(snapshot.FinalVault.TokenPerAsset),
		numeric(snapshot.VaultPnl), numeric(snapshot.MultiPnl), pq.Array(snapshot.Errors),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("cycle_id", snapshot.CycleID).
		Str("final_total_assets", numeric(snapshot.FinalVault.TotalAssets)).
		Msg("Cycle snapshot saved to database")
	return snapshotID, nil
}

type snapshotDocs struct {
	initialVault, initialPosition, initialAlloc []byte
	finalVault, finalPosition, finalAlloc       []byte
	adjustment                                  []byte
}

func marshalSnapshotDocs(s types.CycleSnapshot) (snapshotDocs, error) {
	var d snapshotDocs
	for _, f := range []struct {
		name string
		src  any
		dst  *[]byte
	}{
		{"initial_vault", s.InitialVault, &d.initialVault},
		{"initial_position", s.InitialPosition, &d.initialPosition},
		{"initial_allocation", s.InitialAlloc, &d.initialAlloc},
		{"final_vault", s.FinalVault, &d.finalVault},
		{"final_position", s.FinalPosition, &d.finalPosition},
		{"final_allocation", s.FinalAlloc, &d.finalAlloc},
	} {
		b, err := json.Marshal(f.src)
		if err != nil {
			return snapshotDocs{}, fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		*f.dst = b
	}
	if s.Adjustment != nil {
		b, err := json.Marshal(s.Adjustment)
		if err != nil {
			return snapshotDocs{}, fmt.Errorf("failed to marshal adjustment: %w", err)
		}
		d.adjustment = b
	}
	return d, nil
}

// numeric renders an amount for a NUMERIC column; nil is stored as 0.
func numeric(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

// parseNumeric reads a NUMERIC column scanned as text.
func parseNumeric(s string) (sdkmath.Int, error) {
	if s == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func toInt64s(ws []uint64) []int64 {
	if ws == nil {
		return nil
	}
	out := make([]int64, len(ws))
	for i, w := range ws {
		out[i] = int64(w)
	}
	return out
}

func toUint64s(ws []int64) []uint64 {
	if ws == nil {
		return nil
	}
	out := make([]uint64, len(ws))
	for i, w := range ws {
		out[i] = uint64(w)
	}
	return out
}
