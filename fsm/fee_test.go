package fsm

import (
	"testing"

	"github.com/millpond-labs/millpond/lib"
	"github.com/stretchr/testify/require"
)

func TestComputeFeeShare(t *testing.T) {
	tests := []struct {
		name       string
		detail     string
		supply     uint64
		current    uint64
		checkpoint uint64
		expected   uint64
	}{
		{
			name:       "truncating division",
			detail:     "600*30/3120 is 5.76 and truncates in favor of claim holders",
			supply:     600,
			current:    630,
			checkpoint: 600,
			expected:   5,
		},
		{
			name:       "large pool",
			detail:     "1000000*136/5000544 truncates to 27",
			supply:     1000000,
			current:    1000136,
			checkpoint: 1000000,
			expected:   27,
		},
		{
			name:       "no growth",
			detail:     "an unchanged invariant mints nothing",
			supply:     600,
			current:    600,
			checkpoint: 600,
			expected:   0,
		},
		{
			name:       "no supply",
			detail:     "without claims outstanding there is nothing to dilute",
			supply:     0,
			current:    630,
			checkpoint: 600,
			expected:   0,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fee, err := ComputeFeeShare(lib.NewAmount(test.supply), lib.NewAmount(test.current), lib.NewAmount(test.checkpoint))
			require.NoError(t, err)
			require.Equal(t, lib.NewAmount(test.expected), fee)
		})
	}
}

func TestMintFeeShareDisabledClearsCheckpoint(t *testing.T) {
	sm := newTestStateMachine(t)
	address := createTestPool(t, sm)
	pool, err := sm.GetPool(address)
	require.NoError(t, err)
	// a stale checkpoint left over from when the fee was on
	pool.InvariantCheckpoint = lib.NewAmount(77)
	feeOn, err := sm.mintFeeShare(pool)
	require.NoError(t, err)
	require.False(t, feeOn)
	// the checkpoint is forgiven so growth is not charged retroactively on re-enable
	require.True(t, pool.InvariantCheckpoint.IsZero())
}

func TestMintFeeShareNoBasis(t *testing.T) {
	sm := newTestStateMachine(t)
	recipient := newTestAddressBytes(t, 3)
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient}))
	address := createTestPool(t, sm)
	pool, err := sm.GetPool(address)
	require.NoError(t, err)
	pool.ReserveA, pool.ReserveB = lib.NewAmount(400), lib.NewAmount(900)
	// enabled but no checkpoint yet, there is no settlement basis
	feeOn, err := sm.mintFeeShare(pool)
	require.NoError(t, err)
	require.True(t, feeOn)
	balance, err := sm.ClaimBalance(address, recipient)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestMintFeeShareShrunkenInvariant(t *testing.T) {
	sm := newTestStateMachine(t)
	recipient := newTestAddressBytes(t, 3)
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient}))
	address := createTestPool(t, sm)
	pool, err := sm.GetPool(address)
	require.NoError(t, err)
	pool.ReserveA, pool.ReserveB = lib.NewAmount(400), lib.NewAmount(900)
	// sqrt(400*900) = 600 which is below the checkpoint
	pool.InvariantCheckpoint = lib.NewAmount(700)
	feeOn, err := sm.mintFeeShare(pool)
	require.NoError(t, err)
	require.True(t, feeOn)
	balance, err := sm.ClaimBalance(address, recipient)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	// the checkpoint is untouched, it waits for growth to catch up
	require.Equal(t, lib.NewAmount(700), pool.InvariantCheckpoint)
}

func TestFeeShareLifecycle(t *testing.T) {
	sm := newTestStateMachine(t)
	recipient := newTestAddressBytes(t, 3)
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient}))
	// bootstrap mints sqrt(1e6*1e6) = 1e6 claims and checkpoints the invariant
	poolAddress, _ := seedPool(t, sm, 1000000, 1000000)
	pool, err := sm.GetPool(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(1000000), pool.InvariantCheckpoint)
	// a trade grows the invariant: reserves become 1100000/909340,
	// isqrt(1100000*909340) = 1000136
	trader := newTestAddressBytes(t, 4)
	fundAccount(t, sm, trader, testAssetA, 100000)
	require.NoError(t, sm.transferIn(testAssetA, trader, poolAddress, lib.NewAmount(100000)))
	require.NoError(t, sm.Swap(poolAddress, trader, testAssetA, lib.NewAmount(90660)))
	// settle on demand: fee = 1e6*136/(4*1000136+1000000) = 27
	require.NoError(t, sm.ForceFeeCollection(poolAddress))
	balance, err := sm.ClaimBalance(poolAddress, recipient)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(27), balance)
	supply, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(1000027), supply)
	// the settlement refreshed the checkpoint to the current invariant
	pool, err = sm.GetPool(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(1000136), pool.InvariantCheckpoint)
	// settling again without new growth mints nothing
	require.NoError(t, sm.ForceFeeCollection(poolAddress))
	balance, err = sm.ClaimBalance(poolAddress, recipient)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(27), balance)
}

func TestFeeShareForgivenWhileDisabled(t *testing.T) {
	sm := newTestStateMachine(t)
	recipient := newTestAddressBytes(t, 3)
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient}))
	poolAddress, _ := seedPool(t, sm, 1000000, 1000000)
	// disable the fee, then let the invariant grow
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: false}))
	trader := newTestAddressBytes(t, 4)
	fundAccount(t, sm, trader, testAssetA, 100000)
	require.NoError(t, sm.transferIn(testAssetA, trader, poolAddress, lib.NewAmount(100000)))
	require.NoError(t, sm.Swap(poolAddress, trader, testAssetA, lib.NewAmount(90660)))
	// the disabled settlement clears the stale checkpoint without minting
	require.NoError(t, sm.ForceFeeCollection(poolAddress))
	pool, err := sm.GetPool(poolAddress)
	require.NoError(t, err)
	require.True(t, pool.InvariantCheckpoint.IsZero())
	// re-enabling starts a fresh basis, so the growth while disabled is forgiven
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient}))
	require.NoError(t, sm.ForceFeeCollection(poolAddress))
	require.NoError(t, sm.ForceFeeCollection(poolAddress))
	balance, err := sm.ClaimBalance(poolAddress, recipient)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}
