package fsm

import (
	"testing"

	"github.com/millpond-labs/millpond/lib"
	"github.com/stretchr/testify/require"
)

func TestDepositBootstrap(t *testing.T) {
	sm := newTestStateMachine(t)
	// seed 400/900, the bootstrap mints isqrt(400*900) = 600 claims
	poolAddress, provider := seedPool(t, sm, 400, 900)
	pool, err := sm.GetPool(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(400), pool.ReserveA)
	require.Equal(t, lib.NewAmount(900), pool.ReserveB)
	balance, err := sm.ClaimBalance(poolAddress, provider)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(600), balance)
	supply, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(600), supply)
}

func TestDepositPricing(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		amountA  uint64
		amountB  uint64
		expected uint64
	}{
		{
			name:     "proportional",
			detail:   "a quarter of both reserves mints a quarter of the supply",
			amountA:  100,
			amountB:  225,
			expected: 150,
		},
		{
			name:     "one sided excess",
			detail:   "the lesser ratio prices the deposit and the excess donates to the pool",
			amountA:  100,
			amountB:  900,
			expected: 150,
		},
		{
			name:     "truncated share",
			detail:   "3*600/400 is 4.5 and 7*600/900 is 4.66, the floor of the lesser wins",
			amountA:  3,
			amountB:  7,
			expected: 4,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sm := newTestStateMachine(t)
			poolAddress, _ := seedPool(t, sm, 400, 900)
			second := newTestAddressBytes(t, 5)
			fundAccount(t, sm, second, testAssetA, test.amountA)
			fundAccount(t, sm, second, testAssetB, test.amountB)
			require.NoError(t, sm.transferIn(testAssetA, second, poolAddress, lib.NewAmount(test.amountA)))
			require.NoError(t, sm.transferIn(testAssetB, second, poolAddress, lib.NewAmount(test.amountB)))
			minted, err := sm.DepositLiquidity(poolAddress, second)
			require.NoError(t, err)
			require.Equal(t, lib.NewAmount(test.expected), minted)
			// the pool absorbs everything that arrived, donated excess included
			pool, err := sm.GetPool(poolAddress)
			require.NoError(t, err)
			require.Equal(t, lib.NewAmount(400+test.amountA), pool.ReserveA)
			require.Equal(t, lib.NewAmount(900+test.amountB), pool.ReserveB)
			supply, err := sm.ClaimSupply(poolAddress)
			require.NoError(t, err)
			require.Equal(t, lib.NewAmount(600+test.expected), supply)
		})
	}
}

func TestDepositZeroLiquidity(t *testing.T) {
	t.Run("one sided bootstrap", func(t *testing.T) {
		sm := newTestStateMachine(t)
		poolAddress := createTestPool(t, sm)
		provider := newTestAddressBytes(t)
		fundAccount(t, sm, provider, testAssetA, 400)
		require.NoError(t, sm.transferIn(testAssetA, provider, poolAddress, lib.NewAmount(400)))
		// isqrt(400*0) = 0, nothing to mint
		_, err := sm.DepositLiquidity(poolAddress, provider)
		require.Error(t, err)
		require.Equal(t, lib.CodeInsufficientLiquidity, err.Code())
	})
	t.Run("dust on one side", func(t *testing.T) {
		sm := newTestStateMachine(t)
		poolAddress, _ := seedPool(t, sm, 400, 900)
		second := newTestAddressBytes(t, 5)
		fundAccount(t, sm, second, testAssetA, 1)
		require.NoError(t, sm.transferIn(testAssetA, second, poolAddress, lib.NewAmount(1)))
		// shareB floors to zero so the whole deposit prices to nothing
		_, err := sm.DepositLiquidity(poolAddress, second)
		require.Error(t, err)
		require.Equal(t, lib.CodeInsufficientLiquidity, err.Code())
	})
}

func TestDepositBalanceBelowReserve(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress, provider := seedPool(t, sm, 400, 900)
	// simulate an external debit pulling the live balance under the committed reserve
	require.NoError(t, sm.AccountSub(poolAddress, testAssetA, lib.NewAmount(1)))
	_, err := sm.DepositLiquidity(poolAddress, provider)
	require.Error(t, err)
	require.Equal(t, lib.CodeBalanceBelowReserve, err.Code())
}

func TestWithdrawProportional(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress, provider := seedPool(t, sm, 400, 900)
	// stage a quarter of the claims on the pool address and redeem them
	require.NoError(t, sm.TransferClaims(poolAddress, provider, poolAddress, lib.NewAmount(150)))
	amountA, amountB, err := sm.WithdrawLiquidity(poolAddress, provider)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(100), amountA)
	require.Equal(t, lib.NewAmount(225), amountB)
	// the redeemed assets land back on the provider account
	account, err := sm.GetAccount(provider, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(100), account.Amount)
	account, err = sm.GetAccount(provider, testAssetB)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(225), account.Amount)
	// reserves, supply, and holdings all shrink by a quarter
	pool, err := sm.GetPool(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(300), pool.ReserveA)
	require.Equal(t, lib.NewAmount(675), pool.ReserveB)
	supply, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(450), supply)
	balance, err := sm.ClaimBalance(poolAddress, provider)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(450), balance)
	staged, err := sm.ClaimBalance(poolAddress, poolAddress)
	require.NoError(t, err)
	require.True(t, staged.IsZero())
}

func TestWithdrawNothingStaged(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress, provider := seedPool(t, sm, 400, 900)
	_, _, err := sm.WithdrawLiquidity(poolAddress, provider)
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientAmounts, err.Code())
}

func TestWithdrawDust(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress, provider := seedPool(t, sm, 400, 900)
	// 1*400/600 floors to zero, redeeming would burn the claim for nothing
	require.NoError(t, sm.TransferClaims(poolAddress, provider, poolAddress, lib.NewAmount(1)))
	_, _, err := sm.WithdrawLiquidity(poolAddress, provider)
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientAmounts, err.Code())
	// the rejected claim stays staged rather than burned
	staged, err := sm.ClaimBalance(poolAddress, poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(1), staged)
}

func TestWithdrawAllThenRebootstrap(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress, provider := seedPool(t, sm, 400, 900)
	require.NoError(t, sm.TransferClaims(poolAddress, provider, poolAddress, lib.NewAmount(600)))
	amountA, amountB, err := sm.WithdrawLiquidity(poolAddress, provider)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(400), amountA)
	require.Equal(t, lib.NewAmount(900), amountB)
	pool, err := sm.GetPool(poolAddress)
	require.NoError(t, err)
	require.True(t, pool.ReserveA.IsZero())
	require.True(t, pool.ReserveB.IsZero())
	supply, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.True(t, supply.IsZero())
	// a drained pool bootstraps again from the geometric mean
	require.NoError(t, sm.transferIn(testAssetA, provider, poolAddress, lib.NewAmount(400)))
	require.NoError(t, sm.transferIn(testAssetB, provider, poolAddress, lib.NewAmount(900)))
	minted, err := sm.DepositLiquidity(poolAddress, provider)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(600), minted)
}

func TestDepositCheckpointFollowsFeeSwitch(t *testing.T) {
	t.Run("disabled leaves checkpoint empty", func(t *testing.T) {
		sm := newTestStateMachine(t)
		poolAddress, _ := seedPool(t, sm, 400, 900)
		pool, err := sm.GetPool(poolAddress)
		require.NoError(t, err)
		require.True(t, pool.InvariantCheckpoint.IsZero())
	})
	t.Run("enabled refreshes checkpoint", func(t *testing.T) {
		sm := newTestStateMachine(t)
		require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: newTestAddressBytes(t, 3)}))
		poolAddress, _ := seedPool(t, sm, 400, 900)
		pool, err := sm.GetPool(poolAddress)
		require.NoError(t, err)
		require.Equal(t, lib.NewAmount(600), pool.InvariantCheckpoint)
	})
}

func TestLiquidityCyclesWithoutTradesMintNoFee(t *testing.T) {
	sm := newTestStateMachine(t)
	recipient := newTestAddressBytes(t, 3)
	require.NoError(t, sm.SetParams(&Params{FeeEnabled: true, FeeRecipient: recipient}))
	poolAddress, _ := seedPool(t, sm, 1000, 1000)
	// a proportional deposit moves the supply but not the price, so no fee accrues
	second := newTestAddressBytes(t, 5)
	fundAccount(t, sm, second, testAssetA, 500)
	fundAccount(t, sm, second, testAssetB, 500)
	require.NoError(t, sm.transferIn(testAssetA, second, poolAddress, lib.NewAmount(500)))
	require.NoError(t, sm.transferIn(testAssetB, second, poolAddress, lib.NewAmount(500)))
	minted, err := sm.DepositLiquidity(poolAddress, second)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(500), minted)
	require.NoError(t, sm.TransferClaims(poolAddress, second, poolAddress, lib.NewAmount(500)))
	_, _, err = sm.WithdrawLiquidity(poolAddress, second)
	require.NoError(t, err)
	balance, err := sm.ClaimBalance(poolAddress, recipient)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}
