package state

import (
	"encoding/json"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5432, User: "keeper", DBName: "levvault", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=keeper dbname=levvault sslmode=disable", cfg.ConnectionString())

	cfg.Password = "secret"
	assert.Contains(t, cfg.ConnectionString(), " password=secret")
}

func TestNumericColumns(t *testing.T) {
	big, ok := sdkmath.NewIntFromString("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.True(t, ok)

	v, err := parseNumeric(numeric(big))
	require.NoError(t, err)
	assert.Equal(t, big.String(), v.String())

	assert.Equal(t, "0", numeric(sdkmath.Int{}))
	assert.Equal(t, "-5", numeric(sdkmath.NewInt(-5)))

	v, err = parseNumeric("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = parseNumeric("1.5")
	require.Error(t, err)
}

func TestWeightArrays(t *testing.T) {
	assert.Nil(t, toInt64s(nil))
	assert.Nil(t, toUint64s(nil))
	assert.Equal(t, []uint64{6000, 4000}, toUint64s(toInt64s([]uint64{6000, 4000})))
}

func TestSnapshotDocuments(t *testing.T) {
	s := types.CycleSnapshot{
		InitialVault: types.VaultState{
			TotalAssets:   sdkmath.NewInt(10),
			TotalShares:   sdkmath.NewInt(10),
			TokenPerAsset: sdkmath.NewInt(1),
		},
		InitialPosition: types.EmptyPosition(),
		FinalAlloc:      types.AllocationState{Weights: []uint64{10_000}, Holdings: []sdkmath.Int{sdkmath.NewInt(7)}},
	}
	docs, err := marshalSnapshotDocs(s)
	require.NoError(t, err)
	assert.Nil(t, docs.adjustment)
	assert.JSONEq(t, `{"total_assets":"10","total_shares":"10","token_per_asset":"1"}`, string(docs.initialVault))

	var alloc types.AllocationState
	require.NoError(t, json.Unmarshal(docs.finalAlloc, &alloc))
	assert.Equal(t, "7", alloc.Holdings[0].String())

	s.Adjustment = &types.AdjustPositions{Indices: []int{1, 0}, Deltas: []sdkmath.Int{sdkmath.NewInt(-3), sdkmath.NewInt(3)}}
	docs, err = marshalSnapshotDocs(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"indices":[1,0],"deltas":["-3","3"]}`, string(docs.adjustment))
}

func TestStoresRequireConnection(t *testing.T) {
	require.Nil(t, DB)
	assert.False(t, Enabled())

	_, err := SaveEvents([]events.Event{{Seq: 1}})
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = GetEvents(10, "")
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = SaveCycleSnapshot(types.CycleSnapshot{})
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = IncrementCycleNumber("keeper")
	require.ErrorIs(t, err, ErrNotInitialized)
	_, _, _, err = LoadActivePolicyParameters("loop")
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, SaveYieldSample("loop", types.YieldSample{}), ErrNotInitialized)
	_, err = GetCycleSummary()
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, EnsureSchema(), ErrNotInitialized)
}
