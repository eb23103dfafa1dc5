package fsm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/store"
	"github.com/stretchr/testify/require"
)

func TestGenesisExportImportRoundTrip(t *testing.T) {
	sm := newTestStateMachine(t)
	authority, recipient := newTestAddressBytes(t, 6), newTestAddressBytes(t, 7)
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient, Authority: authority}))
	// trades, transfers, and a stray account make the exported state non trivial
	poolAddress, provider := seedPool(t, sm, 1000000, 2000000)
	trader := newTestAddressBytes(t, 4)
	swapExactIn(t, sm, poolAddress, trader, testAssetA, 50000)
	require.NoError(t, sm.TransferClaims(poolAddress, provider, newTestAddressBytes(t, 5), lib.NewAmount(1234)))
	fundAccount(t, sm, newTestAddressBytes(t, 8), 9, 777)
	exported, err := sm.ExportState()
	require.NoError(t, err)
	require.NoError(t, sm.ValidateGenesisState(exported))
	// a genesis file written from the export boots an identical machine
	dataDir := t.TempDir()
	bz, er := json.MarshalIndent(exported, "", "  ")
	require.NoError(t, er)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, lib.GenesisFilePath), bz, 0o644))
	log := lib.NewNullLogger()
	db, er2 := store.NewStoreInMemory(log)
	require.NoError(t, er2)
	t.Cleanup(func() { _ = db.Close() })
	config := lib.DefaultConfig()
	config.DataDirPath = dataDir
	booted, err := New(config, db, nil, log)
	require.NoError(t, err)
	// genesis occupies version one, the machine continues at tick two
	require.EqualValues(t, 2, booted.Tick())
	rexported, err := booted.ExportState()
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(exported, rexported))
	// the claim supply was rebuilt from the imported balances
	supply, err := booted.ClaimSupply(poolAddress)
	require.NoError(t, err)
	expected, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.Equal(t, expected, supply)
}

func TestGenesisBootIndexesEvents(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress := createTestPool(t, sm)
	exported, err := sm.ExportState()
	require.NoError(t, err)
	dataDir := t.TempDir()
	bz, er := json.Marshal(exported)
	require.NoError(t, er)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, lib.GenesisFilePath), bz, 0o644))
	log := lib.NewNullLogger()
	db, er2 := store.NewStoreInMemory(log)
	require.NoError(t, er2)
	t.Cleanup(func() { _ = db.Close() })
	config := lib.DefaultConfig()
	config.DataDirPath = dataDir
	booted, err := New(config, db, nil, log)
	require.NoError(t, err)
	require.EqualValues(t, 2, booted.Tick())
	// the seeded pool produced a creation event stamped with the genesis stage
	page, err := db.GetEventsByTick(1, lib.PageParams{})
	require.NoError(t, err)
	events, ok := page.Results.(*lib.Events)
	require.True(t, ok)
	require.Len(t, *events, 1)
	require.Equal(t, lib.EventTypePoolCreate, (*events)[0].EventType)
	require.Equal(t, lib.EventStageGenesis, (*events)[0].Reference)
	require.Equal(t, lib.HexBytes(poolAddress), (*events)[0].PoolAddress)
}

func TestReadGenesisFromFileMissing(t *testing.T) {
	sm := newTestStateMachine(t)
	sm.Config.DataDirPath = t.TempDir()
	_, err := sm.ReadGenesisFromFile()
	require.Error(t, err)
	require.Equal(t, lib.CodeReadGenesisFile, err.Code())
}

func TestReadGenesisFromFileMalformed(t *testing.T) {
	sm := newTestStateMachine(t)
	dataDir := t.TempDir()
	sm.Config.DataDirPath = dataDir
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, lib.GenesisFilePath), []byte("{"), 0o644))
	_, err := sm.ReadGenesisFromFile()
	require.Error(t, err)
	require.Equal(t, lib.CodeJSONUnmarshal, err.Code())
}

func TestValidateGenesisState(t *testing.T) {
	goodPool := func() *Pool {
		return &Pool{
			Address:  PoolAddress(1, 2),
			AssetA:   1,
			AssetB:   2,
			ReserveA: lib.NewAmount(10),
			ReserveB: lib.NewAmount(20),
		}
	}
	goodAddress := newTestAddressBytes(t)
	tests := []struct {
		name    string
		detail  string
		genesis *GenesisState
		code    lib.ErrorCode
	}{
		{
			name:   "valid",
			detail: "a pool, a funded account and a claim against the pool",
			genesis: &GenesisState{
				Accounts: []*Account{{Address: goodAddress, Asset: 1, Amount: lib.NewAmount(5)}},
				Pools:    []*Pool{goodPool()},
				Claims:   []*Claim{{PoolAddress: PoolAddress(1, 2), Owner: goodAddress, Amount: lib.NewAmount(14)}},
			},
		},
		{
			name:    "invalid params",
			detail:  "an enabled fee without a recipient cannot be imported",
			genesis: &GenesisState{Params: &Params{FeeEnabled: true}},
			code:    lib.CodeInvalidRecipient,
		},
		{
			name:    "short account address",
			detail:  "account addresses must be address sized",
			genesis: &GenesisState{Accounts: []*Account{{Address: []byte{1, 2}, Asset: 1, Amount: lib.NewAmount(5)}}},
			code:    lib.CodeInvalidGenesis,
		},
		{
			name:    "reserved asset balance",
			detail:  "asset id zero cannot be held",
			genesis: &GenesisState{Accounts: []*Account{{Address: goodAddress, Asset: 0, Amount: lib.NewAmount(5)}}},
			code:    lib.CodeInvalidGenesis,
		},
		{
			name:   "non canonical pair",
			detail: "pool pairs import in ascending order only",
			genesis: &GenesisState{Pools: []*Pool{{
				Address: PoolAddress(1, 2), AssetA: 2, AssetB: 1,
			}}},
			code: lib.CodeInvalidGenesis,
		},
		{
			name:   "address mismatch",
			detail: "a pool address must derive from its pair",
			genesis: &GenesisState{Pools: []*Pool{{
				Address: PoolAddress(1, 3), AssetA: 1, AssetB: 2,
			}}},
			code: lib.CodeInvalidGenesis,
		},
		{
			name:   "oversized reserve",
			detail: "reserves above the bound would break price encoding",
			genesis: &GenesisState{Pools: []*Pool{func() *Pool {
				pool := goodPool()
				pool.ReserveA = new(uint256.Int).AddUint64(lib.MaxReserve, 1)
				return pool
			}()}},
			code: lib.CodeInvalidGenesis,
		},
		{
			name:   "locked guard",
			detail: "a pool cannot import mid operation",
			genesis: &GenesisState{Pools: []*Pool{func() *Pool {
				pool := goodPool()
				pool.GuardState = GuardLocked
				return pool
			}()}},
			code: lib.CodeInvalidGenesis,
		},
		{
			name:    "duplicate pool",
			detail:  "one pool per pair",
			genesis: &GenesisState{Pools: []*Pool{goodPool(), goodPool()}},
			code:    lib.CodeInvalidGenesis,
		},
		{
			name:   "claim against unknown pool",
			detail: "claims must reference an imported pool",
			genesis: &GenesisState{
				Pools:  []*Pool{goodPool()},
				Claims: []*Claim{{PoolAddress: PoolAddress(1, 3), Owner: goodAddress, Amount: lib.NewAmount(5)}},
			},
			code: lib.CodeInvalidGenesis,
		},
		{
			name:   "short claim owner",
			detail: "claim owners must be address sized",
			genesis: &GenesisState{
				Pools:  []*Pool{goodPool()},
				Claims: []*Claim{{PoolAddress: PoolAddress(1, 2), Owner: []byte{9}, Amount: lib.NewAmount(5)}},
			},
			code: lib.CodeInvalidGenesis,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sm := newTestStateMachine(t)
			err := sm.ValidateGenesisState(test.genesis)
			if test.code == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, test.code, err.Code())
		})
	}
}
