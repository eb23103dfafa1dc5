package fsm

import (
	"crypto/ed25519"
	"testing"

	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/millpond-labs/millpond/store"
	"github.com/stretchr/testify/require"
)

const (
	testAssetA = uint64(1)
	testAssetB = uint64(2)
)

func TestAtomicRollsBackStateAndEvents(t *testing.T) {
	// create a test state machine
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	// seed a committed-side balance
	require.NoError(t, sm.AccountAdd(address, testAssetA, lib.NewAmount(50)))
	mark := len(sm.events.Events)
	// run an operation that mutates state, records an event and then fails
	err := sm.atomic(func() lib.ErrorI {
		require.NoError(t, sm.AccountAdd(address, testAssetA, lib.NewAmount(100)))
		require.NoError(t, sm.events.Add(&lib.Event{EventType: lib.EventTypeSwap}))
		return ErrInvalidAmount()
	})
	require.Error(t, err)
	// the balance mutation was rolled back
	account, e := sm.GetAccount(address, testAssetA)
	require.NoError(t, e)
	require.Equal(t, lib.NewAmount(50), account.Amount)
	// the event recorded inside the failed operation was dropped
	require.Len(t, sm.events.Events, mark)
}

func TestAtomicWritesThroughOnSuccess(t *testing.T) {
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	require.NoError(t, sm.atomic(func() lib.ErrorI {
		return sm.AccountAdd(address, testAssetA, lib.NewAmount(25))
	}))
	account, err := sm.GetAccount(address, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(25), account.Amount)
}

func TestAtomicNests(t *testing.T) {
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	// the outer operation survives while the failed inner one is discarded alone
	require.NoError(t, sm.atomic(func() lib.ErrorI {
		if err := sm.AccountAdd(address, testAssetA, lib.NewAmount(10)); err != nil {
			return err
		}
		inner := sm.atomic(func() lib.ErrorI {
			require.NoError(t, sm.AccountAdd(address, testAssetA, lib.NewAmount(90)))
			return ErrInvalidAmount()
		})
		require.Error(t, inner)
		return nil
	}))
	account, err := sm.GetAccount(address, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(10), account.Amount)
}

func TestGuardedTracksGuardState(t *testing.T) {
	sm := newTestStateMachine(t)
	address := createTestPool(t, sm)
	var observed GuardState
	require.NoError(t, sm.guarded(address, func(pool *Pool) lib.ErrorI {
		// the guard must be visible through the live overlay while the op runs
		inside, err := sm.GetPool(address)
		if err != nil {
			return err
		}
		observed = inside.GuardState
		return nil
	}))
	require.Equal(t, GuardLocked, observed)
	// the persisted pool is always unlocked
	after, err := sm.GetPool(address)
	require.NoError(t, err)
	require.Equal(t, GuardUnlocked, after.GuardState)
}

func TestGuardedRejectsReentry(t *testing.T) {
	sm := newTestStateMachine(t)
	address := createTestPool(t, sm)
	require.NoError(t, sm.guarded(address, func(pool *Pool) lib.ErrorI {
		err := sm.guarded(address, func(*Pool) lib.ErrorI { return nil })
		require.Error(t, err)
		require.Equal(t, lib.CodeReentrant, err.Code())
		return nil
	}))
}

func TestGuardedUnlocksAfterFailure(t *testing.T) {
	sm := newTestStateMachine(t)
	address := createTestPool(t, sm)
	err := sm.guarded(address, func(pool *Pool) lib.ErrorI {
		return ErrInvalidAmount()
	})
	require.Error(t, err)
	// the failed overlay was discarded so the guard never reached the store
	pool, e := sm.GetPool(address)
	require.NoError(t, e)
	require.Equal(t, GuardUnlocked, pool.GuardState)
	// the pool accepts the next operation
	require.NoError(t, sm.guarded(address, func(*Pool) lib.ErrorI { return nil }))
}

func TestApplyEnvelope(t *testing.T) {
	sm := newTestStateMachine(t)
	kg := newTestKeyGroup(t)
	// wrap, sign and serialize a create pool message
	envelope, err := NewEnvelope(&MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)
	require.NoError(t, err)
	require.NoError(t, envelope.Sign(kg.PrivateKey))
	bz, e := envelope.MarshalBinary()
	require.NoError(t, e)
	require.NoError(t, sm.ApplyEnvelope(bz))
	// the pool now exists
	pool, err := sm.GetPoolByAssets(testAssetA, testAssetB)
	require.NoError(t, err)
	require.Equal(t, testAssetA, pool.AssetA)
	require.Equal(t, testAssetB, pool.AssetB)
	// the sender sequence was consumed
	sequence, err := sm.GetAccountSequence(kg.Address.Bytes())
	require.NoError(t, err)
	require.EqualValues(t, 1, sequence)
	// replaying the identical envelope is rejected
	err = sm.ApplyEnvelope(bz)
	require.Error(t, err)
	require.Equal(t, lib.CodeInvalidSequence, err.Code())
}

func TestApplyEnvelopeFailureConsumesNothing(t *testing.T) {
	sm := newTestStateMachine(t)
	kg := newTestKeyGroup(t)
	// a swap against a pool that does not exist fails during execution
	envelope, err := NewEnvelope(&MessageSwap{
		PoolAddress:  newTestAddressBytes(t, 7),
		InputAsset:   testAssetA,
		InputAmount:  lib.NewAmount(10),
		OutputAmount: lib.NewAmount(1),
	}, 1)
	require.NoError(t, err)
	require.NoError(t, envelope.Sign(kg.PrivateKey))
	bz, e := envelope.MarshalBinary()
	require.NoError(t, e)
	require.Error(t, sm.ApplyEnvelope(bz))
	// the failed envelope did not consume the sequence
	sequence, err := sm.GetAccountSequence(kg.Address.Bytes())
	require.NoError(t, err)
	require.Zero(t, sequence)
	// the same sequence remains usable
	envelope, err = NewEnvelope(&MessageCreatePool{AssetA: testAssetA, AssetB: testAssetB}, 1)
	require.NoError(t, err)
	require.NoError(t, envelope.Sign(kg.PrivateKey))
	bz, e = envelope.MarshalBinary()
	require.NoError(t, e)
	require.NoError(t, sm.ApplyEnvelope(bz))
}

func TestFlushEvents(t *testing.T) {
	sm := newTestStateMachine(t)
	createTestPool(t, sm)
	require.Len(t, sm.events.Events, 1)
	// drain the tracker into the event index
	n, err := sm.FlushEvents(0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Empty(t, sm.events.Events)
	// the event is retrievable under the current tick
	page, err := sm.store.(lib.StoreI).GetEventsByTick(sm.Tick(), lib.PageParams{})
	require.NoError(t, err)
	events, ok := page.Results.(*lib.Events)
	require.True(t, ok)
	require.Len(t, *events, 1)
	require.Equal(t, lib.EventTypePoolCreate, (*events)[0].EventType)
	require.Equal(t, sm.Tick(), (*events)[0].Tick)
}

func TestCopyIsolation(t *testing.T) {
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	require.NoError(t, sm.AccountAdd(address, testAssetA, lib.NewAmount(10)))
	// the copy only sees committed state
	_, e := sm.store.(lib.StoreI).Commit()
	require.NoError(t, e)
	clone, err := sm.Copy()
	require.NoError(t, err)
	defer clone.Discard()
	// a write to the clone must not leak into the original
	require.NoError(t, clone.AccountAdd(address, testAssetA, lib.NewAmount(90)))
	account, err := sm.GetAccount(address, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(10), account.Amount)
	cloned, err := clone.GetAccount(address, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(100), cloned.Amount)
}

func newTestStateMachine(t *testing.T) *StateMachine {
	log := lib.NewNullLogger()
	db, err := store.NewStoreInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sm := &StateMachine{
		store:           db,
		ProtocolVersion: ProtocolVersion,
		tick:            2,
		events:          new(lib.EventsTracker),
		Config:          lib.DefaultConfig(),
		log:             log,
	}
	sm.assets = &accountLedger{sm}
	require.NoError(t, sm.SetParams(DefaultParams()))
	return sm
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

func newTestAddress(t *testing.T, variation ...int) crypto.AddressI {
	return newTestKeyGroup(t, variation...).Address
}

func newTestAddressBytes(t *testing.T, variation ...int) []byte {
	return newTestAddress(t, variation...).Bytes()
}

// createTestPool() registers the standard test pool and returns its address
func createTestPool(t *testing.T, sm *StateMachine) []byte {
	address, err := sm.CreatePool(testAssetA, testAssetB, newTestAddressBytes(t))
	require.NoError(t, err)
	return address
}

// fundAccount() credits an address with an asset balance
func fundAccount(t *testing.T, sm *StateMachine, address []byte, asset, amount uint64) {
	require.NoError(t, sm.AccountAdd(address, asset, lib.NewAmount(amount)))
}

// seedPool() creates the test pool and gives it starting reserves through a real deposit,
// returning the pool address and the liquidity provider who holds all minted claims
func seedPool(t *testing.T, sm *StateMachine, reserveA, reserveB uint64) (poolAddress, provider []byte) {
	provider = newTestAddressBytes(t)
	poolAddress = createTestPool(t, sm)
	fundAccount(t, sm, provider, testAssetA, reserveA)
	fundAccount(t, sm, provider, testAssetB, reserveB)
	require.NoError(t, sm.transferIn(testAssetA, provider, poolAddress, lib.NewAmount(reserveA)))
	require.NoError(t, sm.transferIn(testAssetB, provider, poolAddress, lib.NewAmount(reserveB)))
	minted, err := sm.DepositLiquidity(poolAddress, provider)
	require.NoError(t, err)
	require.False(t, minted.IsZero())
	return
}
