package fsm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/stretchr/testify/require"
)

func TestSetGetAccount(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		accounts []*Account
	}{
		{
			name:     "missing account",
			detail:   "getting an account that doesn't exist returns a non nil record with a zero balance",
			accounts: nil,
		},
		{
			name:   "single account",
			detail: "setting and getting one account",
			accounts: []*Account{{
				Address: newTestAddressBytes(t),
				Asset:   testAssetA,
				Amount:  lib.NewAmount(100),
			}},
		},
		{
			name:   "multiple assets per address",
			detail: "one address holds independent balances per asset",
			accounts: []*Account{{
				Address: newTestAddressBytes(t),
				Asset:   testAssetA,
				Amount:  lib.NewAmount(100),
			}, {
				Address: newTestAddressBytes(t),
				Asset:   testAssetB,
				Amount:  lib.NewAmount(200),
			}, {
				Address: newTestAddressBytes(t, 1),
				Asset:   testAssetA,
				Amount:  lib.NewAmount(300),
			}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sm := newTestStateMachine(t)
			if test.accounts == nil {
				got, err := sm.GetAccount(newTestAddressBytes(t), testAssetA)
				require.NoError(t, err)
				require.Equal(t, newTestAddressBytes(t), []byte(got.Address))
				require.Equal(t, testAssetA, got.Asset)
				require.True(t, got.Amount.IsZero())
				return
			}
			require.NoError(t, sm.SetAccounts(test.accounts))
			for _, expected := range test.accounts {
				got, err := sm.GetAccount(expected.Address, expected.Asset)
				require.NoError(t, err)
				require.Equal(t, expected.Amount, got.Amount)
			}
		})
	}
}

func TestSetAccountZeroDeletes(t *testing.T) {
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	require.NoError(t, sm.AccountAdd(address, testAssetA, lib.NewAmount(10)))
	// draining the balance removes the record entirely
	require.NoError(t, sm.AccountSub(address, testAssetA, lib.NewAmount(10)))
	bz, err := sm.Get(KeyForAccount(address, testAssetA))
	require.NoError(t, err)
	require.Nil(t, bz)
	// reads still yield a usable zero record
	account, err := sm.GetAccount(address, testAssetA)
	require.NoError(t, err)
	require.True(t, account.Amount.IsZero())
}

func TestAccountSubInsufficient(t *testing.T) {
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	require.NoError(t, sm.AccountAdd(address, testAssetA, lib.NewAmount(5)))
	err := sm.AccountSub(address, testAssetA, lib.NewAmount(6))
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientFunds, err.Code())
	// the failed debit changed nothing
	account, e := sm.GetAccount(address, testAssetA)
	require.NoError(t, e)
	require.Equal(t, lib.NewAmount(5), account.Amount)
}

func TestAccountSequence(t *testing.T) {
	sm := newTestStateMachine(t)
	address := newTestAddressBytes(t)
	// fresh addresses start at zero
	sequence, err := sm.GetAccountSequence(address)
	require.NoError(t, err)
	require.Zero(t, sequence)
	// consume one
	require.NoError(t, sm.SetAccountSequence(address, 1))
	// replay and zero are both stale
	for _, stale := range []uint64{0, 1} {
		err = sm.SetAccountSequence(address, stale)
		require.Error(t, err)
		require.Equal(t, lib.CodeInvalidSequence, err.Code())
	}
	// gaps are allowed, only monotonicity is enforced
	require.NoError(t, sm.SetAccountSequence(address, 5))
	sequence, err = sm.GetAccountSequence(address)
	require.NoError(t, err)
	require.EqualValues(t, 5, sequence)
}

func TestAccountLedgerOutcomes(t *testing.T) {
	sm := newTestStateMachine(t)
	from, to := newTestAddressBytes(t), newTestAddressBytes(t, 1)
	fundAccount(t, sm, from, testAssetA, 100)
	// a covered transfer acknowledges success
	outcome, err := sm.assets.Transfer(testAssetA, from, to, lib.NewAmount(60))
	require.NoError(t, err)
	require.Equal(t, TransferAck, outcome)
	// an uncovered transfer refuses without erroring
	outcome, err = sm.assets.Transfer(testAssetA, from, to, lib.NewAmount(60))
	require.NoError(t, err)
	require.Equal(t, TransferRefused, outcome)
	// the refusal maps differently by direction
	err = sm.transferOut(testAssetA, from, to, lib.NewAmount(60))
	require.Error(t, err)
	require.Equal(t, lib.CodeTransferFailed, err.Code())
	err = sm.transferIn(testAssetA, from, to, lib.NewAmount(60))
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientFunds, err.Code())
}

func TestHandleMessageTransferAsset(t *testing.T) {
	sm := newTestStateMachine(t)
	from, to := newTestAddressBytes(t), newTestAddressBytes(t, 1)
	fundAccount(t, sm, from, testAssetA, 100)
	require.NoError(t, sm.HandleMessage(from, &MessageTransfer{
		Asset:     testAssetA,
		ToAddress: to,
		Amount:    lib.NewAmount(40),
	}))
	sender, err := sm.GetAccount(from, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(60), sender.Amount)
	receiver, err := sm.GetAccount(to, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(40), receiver.Amount)
	// an uncovered send fails without partial effects
	err = sm.HandleMessage(from, &MessageTransfer{
		Asset:     testAssetA,
		ToAddress: to,
		Amount:    lib.NewAmount(61),
	})
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientFunds, err.Code())
	sender, err = sm.GetAccount(from, testAssetA)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(60), sender.Amount)
}

func TestHandleMessageTransferClaims(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress, provider := seedPool(t, sm, 400, 900)
	to := newTestAddressBytes(t, 1)
	balance, err := sm.ClaimBalance(poolAddress, provider)
	require.NoError(t, err)
	require.False(t, balance.IsZero())
	// setting the pool address routes the transfer to the claim ledger
	require.NoError(t, sm.HandleMessage(provider, &MessageTransfer{
		PoolAddress: poolAddress,
		ToAddress:   to,
		Amount:      lib.NewAmount(100),
	}))
	moved, err := sm.ClaimBalance(poolAddress, to)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(100), moved)
	remaining, err := sm.ClaimBalance(poolAddress, provider)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Sub(balance, lib.NewAmount(100)), remaining)
}
