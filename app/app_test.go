package app

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/millpond-labs/millpond/store"
	"github.com/stretchr/testify/require"
)

const (
	testAssetA = uint64(1)
	testAssetB = uint64(2)
)

func TestHandleEnvelopeQueuesValidEnvelope(t *testing.T) {
	a, kg := newTestApp(t)
	bz := newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)
	require.NoError(t, a.HandleEnvelope(bz))
	// the envelope waits in the queue
	require.Equal(t, 1, a.Queue.Count())
	require.True(t, a.Queue.Contains(crypto.HashString(bz)))
	// a duplicate submission is rejected
	err := a.HandleEnvelope(bz)
	require.Error(t, err)
	require.Equal(t, lib.CodeEnvelopeFoundInQueue, err.Code())
	// the committed state is untouched until the tick commits
	_, err = a.FSM.GetPoolByAssets(testAssetA, testAssetB)
	require.Error(t, err)
	require.Equal(t, lib.CodePoolNotFound, err.Code())
}

func TestHandleEnvelopeRejectsInvalidEnvelope(t *testing.T) {
	a, kg := newTestApp(t)
	// a swap against a pool that does not exist fails the ephemeral replay
	bz := newSignedEnvelope(t, kg, &fsm.MessageSwap{
		PoolAddress:  fsm.PoolAddress(testAssetA, testAssetB),
		InputAsset:   testAssetA,
		InputAmount:  lib.NewAmount(10),
		OutputAmount: lib.NewAmount(1),
	}, 1)
	err := a.HandleEnvelope(bz)
	require.Error(t, err)
	require.Equal(t, lib.CodePoolNotFound, err.Code())
	// the envelope never entered the queue
	require.Zero(t, a.Queue.Count())
	// the rejection is reported on the failed page for the sender
	page, pErr := a.GetFailedPage(kg.Address.String(), lib.PageParams{})
	require.NoError(t, pErr)
	require.Equal(t, 1, page.Count)
	failed := *page.Results.(*lib.FailedEnvelopes)
	require.Equal(t, crypto.HashString(bz), failed[0].Hash)
	require.Equal(t, kg.Address.String(), failed[0].Address)
}

func TestHandleEnvelopeChainsSequences(t *testing.T) {
	a, kg := newTestApp(t)
	poolAddress := fsm.PoolAddress(testAssetA, testAssetB)
	// the deposit only checks out because the ephemeral state already holds the pool
	// created by the first envelope and the sequence it consumed
	first := newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)
	second := newSignedEnvelope(t, kg, &fsm.MessageDeposit{
		PoolAddress: poolAddress,
		AmountA:     lib.NewAmount(400),
		AmountB:     lib.NewAmount(900),
	}, 2)
	require.NoError(t, a.HandleEnvelope(first))
	require.NoError(t, a.HandleEnvelope(second))
	require.Equal(t, 2, a.Queue.Count())
	// replaying the first sequence is rejected by the ephemeral state
	err := a.HandleEnvelope(newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: uint64(3)}, 1))
	require.Error(t, err)
	require.Equal(t, lib.CodeInvalidSequence, err.Code())
}

func TestCommitTickAppliesEnvelopes(t *testing.T) {
	a, kg := newTestApp(t)
	poolAddress := fsm.PoolAddress(testAssetA, testAssetB)
	tick := a.FSM.Tick()
	require.NoError(t, a.HandleEnvelope(newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)))
	require.NoError(t, a.HandleEnvelope(newSignedEnvelope(t, kg, &fsm.MessageDeposit{
		PoolAddress: poolAddress,
		AmountA:     lib.NewAmount(400),
		AmountB:     lib.NewAmount(900),
	}, 2)))
	require.NoError(t, a.CommitTick())
	// the pool exists with the deposited reserves
	pool, err := a.FSM.GetPool(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(400), pool.ReserveA)
	require.Equal(t, lib.NewAmount(900), pool.ReserveB)
	// the provider holds the minted claims
	claim, err := a.FSM.GetClaim(poolAddress, kg.Address.Bytes())
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(600), claim.Amount)
	// the applied envelopes left the queue and the clock advanced
	require.Zero(t, a.Queue.Count())
	require.Equal(t, tick+1, a.FSM.Tick())
	// the events of both envelopes are indexed under the committed tick in apply order
	db := a.FSM.Store().(lib.StoreI)
	page, err := db.GetEventsByTick(tick, lib.PageParams{})
	require.NoError(t, err)
	events := *page.Results.(*lib.Events)
	require.Len(t, events, 3)
	require.Equal(t, lib.EventTypePoolCreate, events[0].EventType)
	require.Equal(t, lib.EventTypeReserveSync, events[1].EventType)
	require.Equal(t, lib.EventTypeDeposit, events[2].EventType)
	for i, event := range events {
		require.Equal(t, tick, event.Tick)
		require.EqualValues(t, i, event.Index)
	}
}

func TestCommitTickEmptyStillCommits(t *testing.T) {
	a, _ := newTestApp(t)
	db := a.FSM.Store().(lib.StoreI)
	version, tick := db.Version(), a.FSM.Tick()
	// an envelope-less tick still produces a version so price accumulators see elapsed time
	require.NoError(t, a.CommitTick())
	require.Equal(t, version+1, db.Version())
	require.Equal(t, tick+1, a.FSM.Tick())
	require.NoError(t, a.CommitTick())
	require.Equal(t, version+2, db.Version())
	require.Equal(t, tick+2, a.FSM.Tick())
}

func TestCommitTickEvictsInvalidEnvelope(t *testing.T) {
	a, kg := newTestApp(t)
	// slip an envelope past the ephemeral check straight into the queue
	bz := newSignedEnvelope(t, kg, &fsm.MessageSwap{
		PoolAddress:  fsm.PoolAddress(testAssetA, testAssetB),
		InputAsset:   testAssetA,
		InputAmount:  lib.NewAmount(10),
		OutputAmount: lib.NewAmount(1),
	}, 1)
	_, err := a.Queue.AddEnvelope(bz)
	require.NoError(t, err)
	require.Equal(t, 1, a.Queue.Count())
	// the tick rejects it, evicts it and still commits
	db := a.FSM.Store().(lib.StoreI)
	version := db.Version()
	require.NoError(t, a.CommitTick())
	require.Zero(t, a.Queue.Count())
	require.Equal(t, version+1, db.Version())
	// the failure is reported for the sender
	page, pErr := a.GetFailedPage(kg.Address.String(), lib.PageParams{})
	require.NoError(t, pErr)
	require.Equal(t, 1, page.Count)
	// the rejected envelope consumed nothing
	sequence, sErr := a.FSM.GetAccountSequence(kg.Address.Bytes())
	require.NoError(t, sErr)
	require.Zero(t, sequence)
}

func TestCommitEveryEnvelopeMode(t *testing.T) {
	a, kg := newTestApp(t)
	a.Config.CommitEveryEnvelope = true
	db := a.FSM.Store().(lib.StoreI)
	version, tick := db.Version(), a.FSM.Tick()
	require.NoError(t, a.HandleEnvelope(newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)))
	require.NoError(t, a.HandleEnvelope(newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: uint64(3)}, 2)))
	require.NoError(t, a.CommitTick())
	// each envelope produced its own version
	require.Equal(t, version+2, db.Version())
	require.Equal(t, tick+2, a.FSM.Tick())
	// each envelope's events landed in its own tick at index zero
	for i := uint32(0); i < 2; i++ {
		page, err := db.GetEventsByTick(tick+i, lib.PageParams{})
		require.NoError(t, err)
		events := *page.Results.(*lib.Events)
		require.Len(t, events, 1)
		require.Equal(t, lib.EventTypePoolCreate, events[0].EventType)
		require.Zero(t, events[0].Index)
	}
}

func TestPendingPageTracksQueue(t *testing.T) {
	a, kg := newTestApp(t)
	bz := newSignedEnvelope(t, kg, &fsm.MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)
	require.NoError(t, a.HandleEnvelope(bz))
	page, err := a.GetPendingPage(lib.PageParams{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	pending := *page.Results.(*PendingEnvelopes)
	require.Equal(t, crypto.HashString(bz), pending[0].Hash)
	require.Equal(t, kg.Address.String(), pending[0].Address)
	require.EqualValues(t, 1, pending[0].Envelope.Sequence)
	// after the tick commits the pending page drains
	require.NoError(t, a.CommitTick())
	page, err = a.GetPendingPage(lib.PageParams{})
	require.NoError(t, err)
	require.Zero(t, page.Count)
}

// newTestApp() boots an app over an in-memory store from a minimal genesis that
// funds the returned key with both test assets
func newTestApp(t *testing.T) (*App, *crypto.KeyGroup) {
	log := lib.NewNullLogger()
	db, err := store.NewStoreInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	kg := newTestKeyGroup(t)
	genesis := &fsm.GenesisState{
		Params: fsm.DefaultParams(),
		Accounts: []*fsm.Account{
			{Address: kg.Address.Bytes(), Asset: testAssetA, Amount: lib.NewAmount(1000000)},
			{Address: kg.Address.Bytes(), Asset: testAssetB, Amount: lib.NewAmount(1000000)},
		},
	}
	bz, e := json.Marshal(genesis)
	require.NoError(t, e)
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, lib.GenesisFilePath), bz, 0o644))
	config := lib.DefaultConfig()
	config.DataDirPath = dataDir
	a, er := New(config, db, nil, log)
	require.NoError(t, er)
	return a, kg
}

func newTestKeyGroup(t *testing.T, variation ...int) *crypto.KeyGroup {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 1
	if len(variation) > 0 {
		seed[0] = byte(variation[0] + 1)
	}
	return crypto.NewKeyGroup(crypto.BytesToED25519Private(ed25519.NewKeyFromSeed(seed)))
}

// newSignedEnvelope() wraps, signs and serializes a message
func newSignedEnvelope(t *testing.T, kg *crypto.KeyGroup, msg fsm.MessageI, sequence uint64) []byte {
	t.Helper()
	envelope, err := fsm.NewEnvelope(msg, sequence)
	require.NoError(t, err)
	require.NoError(t, envelope.Sign(kg.PrivateKey))
	bz, e := envelope.MarshalBinary()
	require.NoError(t, e)
	return bz
}
