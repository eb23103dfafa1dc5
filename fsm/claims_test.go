package fsm

import (
	"testing"

	"github.com/millpond-labs/millpond/lib"
	"github.com/stretchr/testify/require"
)

func TestMintAndBurnClaims(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress := createTestPool(t, sm)
	owner := newTestAddressBytes(t, 4)
	require.NoError(t, sm.MintClaims(poolAddress, owner, lib.NewAmount(100)))
	require.NoError(t, sm.MintClaims(poolAddress, owner, lib.NewAmount(40)))
	balance, err := sm.ClaimBalance(poolAddress, owner)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(140), balance)
	supply, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(140), supply)
	require.NoError(t, sm.BurnClaims(poolAddress, owner, lib.NewAmount(140)))
	// a fully burned position leaves no residual records
	balance, err = sm.ClaimBalance(poolAddress, owner)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	supply, err = sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.True(t, supply.IsZero())
	bz, err := sm.Get(KeyForClaim(poolAddress, owner))
	require.NoError(t, err)
	require.Nil(t, bz)
}

func TestBurnClaimsInsufficient(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress := createTestPool(t, sm)
	owner := newTestAddressBytes(t, 4)
	require.NoError(t, sm.MintClaims(poolAddress, owner, lib.NewAmount(10)))
	err := sm.BurnClaims(poolAddress, owner, lib.NewAmount(11))
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientClaims, err.Code())
	balance, err2 := sm.ClaimBalance(poolAddress, owner)
	require.NoError(t, err2)
	require.Equal(t, lib.NewAmount(10), balance)
}

func TestTransferClaims(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress := createTestPool(t, sm)
	from, to := newTestAddressBytes(t, 4), newTestAddressBytes(t, 5)
	require.NoError(t, sm.MintClaims(poolAddress, from, lib.NewAmount(100)))
	require.NoError(t, sm.TransferClaims(poolAddress, from, to, lib.NewAmount(30)))
	balance, err := sm.ClaimBalance(poolAddress, from)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(70), balance)
	balance, err = sm.ClaimBalance(poolAddress, to)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(30), balance)
	// moving claims between owners never changes the supply
	supply, err := sm.ClaimSupply(poolAddress)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(100), supply)
	// an uncovered transfer fails before anything moves
	err = sm.TransferClaims(poolAddress, from, to, lib.NewAmount(71))
	require.Error(t, err)
	require.Equal(t, lib.CodeInsufficientClaims, err.Code())
	balance, err = sm.ClaimBalance(poolAddress, from)
	require.NoError(t, err)
	require.Equal(t, lib.NewAmount(70), balance)
}

func TestGetClaimsByPoolPaginated(t *testing.T) {
	sm := newTestStateMachine(t)
	poolAddress := createTestPool(t, sm)
	// a second pool's claims must not leak into the page
	otherAddress, err := sm.CreatePool(testAssetA, 3, newTestAddressBytes(t))
	require.NoError(t, err)
	require.NoError(t, sm.MintClaims(otherAddress, newTestAddressBytes(t, 9), lib.NewAmount(1)))
	for i := 0; i < 3; i++ {
		require.NoError(t, sm.MintClaims(poolAddress, newTestAddressBytes(t, 4+i), lib.NewAmount(uint64(10*(i+1)))))
	}
	page, err := sm.GetClaimsByPoolPaginated(poolAddress, lib.PageParams{PageNumber: 1, PerPage: 2})
	require.NoError(t, err)
	require.Equal(t, 2, page.Count)
	require.Equal(t, 3, page.TotalCount)
	require.Equal(t, 2, page.TotalPages)
	claims, ok := page.Results.(*Claims)
	require.True(t, ok)
	require.Len(t, *claims, 2)
	for _, claim := range *claims {
		require.Equal(t, lib.HexBytes(poolAddress), claim.PoolAddress)
	}
}
