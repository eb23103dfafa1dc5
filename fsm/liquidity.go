package fsm

import (
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
)

// DepositLiquidity() mints claim tokens to the caller for assets already transferred to the
// pool address. Deposits are measured as the difference between live balances and committed
// reserves, so any asset that actually arrived counts, whatever its transfer semantics
func (s *StateMachine) DepositLiquidity(poolAddress, caller []byte) (minted *uint256.Int, err lib.ErrorI) {
	err = s.guarded(poolAddress, func(pool *Pool) (e lib.ErrorI) {
		minted, e = s.deposit(pool, caller)
		return
	})
	if err != nil {
		minted = nil
	}
	return
}

// WithdrawLiquidity() redeems the claim tokens held by the pool's own address for a
// proportional share of both reserves, paid out to the caller
func (s *StateMachine) WithdrawLiquidity(poolAddress, caller []byte) (amountA, amountB *uint256.Int, err lib.ErrorI) {
	err = s.guarded(poolAddress, func(pool *Pool) (e lib.ErrorI) {
		amountA, amountB, e = s.withdraw(pool, caller)
		return
	})
	if err != nil {
		amountA, amountB = nil, nil
	}
	return
}

func (s *StateMachine) deposit(pool *Pool, caller []byte) (liquidity *uint256.Int, err lib.ErrorI) {
	// observe live balances; the excess over committed reserves is the deposit
	balanceA, balanceB, err := s.poolBalances(pool)
	if err != nil {
		return
	}
	if balanceA.Cmp(pool.ReserveA) < 0 || balanceB.Cmp(pool.ReserveB) < 0 {
		return nil, ErrBalanceBelowReserve()
	}
	amountA := new(uint256.Int).Sub(balanceA, pool.ReserveA)
	amountB := new(uint256.Int).Sub(balanceB, pool.ReserveB)
	// settle the accrued fee share before the supply changes
	feeOn, err := s.mintFeeShare(pool)
	if err != nil {
		return
	}
	supply, err := s.ClaimSupply(pool.Address)
	if err != nil {
		return
	}
	if supply.IsZero() {
		// bootstrap mints the geometric mean of the seed amounts, all to the depositor
		liquidity = lib.SqrtProduct(amountA, amountB)
	} else {
		shareA, e := lib.SafeMulDiv(amountA, supply, pool.ReserveA)
		if e != nil {
			return nil, e
		}
		shareB, e := lib.SafeMulDiv(amountB, supply, pool.ReserveB)
		if e != nil {
			return nil, e
		}
		// the lesser ratio prices the deposit so one sided excess donates to the pool
		liquidity = lib.MinAmount(shareA, shareB)
	}
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidity()
	}
	if err = s.MintClaims(pool.Address, caller, liquidity); err != nil {
		return
	}
	if err = s.commitReserves(pool, balanceA, balanceB); err != nil {
		return
	}
	if feeOn {
		pool.InvariantCheckpoint = lib.SqrtProduct(pool.ReserveA, pool.ReserveB)
	}
	return liquidity, s.EventDeposit(pool, caller, amountA, amountB, liquidity)
}

func (s *StateMachine) withdraw(pool *Pool, caller []byte) (amountA, amountB *uint256.Int, err lib.ErrorI) {
	// the claims to redeem are the ones held by the pool's own address
	liquidity, err := s.ClaimBalance(pool.Address, pool.Address)
	if err != nil {
		return
	}
	if liquidity.IsZero() {
		return nil, nil, ErrInsufficientAmounts()
	}
	// settle the accrued fee share so redemption prices against the post settlement supply
	feeOn, err := s.mintFeeShare(pool)
	if err != nil {
		return
	}
	supply, err := s.ClaimSupply(pool.Address)
	if err != nil {
		return
	}
	if amountA, err = lib.SafeMulDiv(liquidity, pool.ReserveA, supply); err != nil {
		return
	}
	if amountB, err = lib.SafeMulDiv(liquidity, pool.ReserveB, supply); err != nil {
		return
	}
	// flooring may round a dust redemption to nothing; reject rather than burn for free
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, ErrInsufficientAmounts()
	}
	if err = s.BurnClaims(pool.Address, pool.Address, liquidity); err != nil {
		return
	}
	// pay out both assets before measuring the remaining balances
	if err = s.transferOut(pool.AssetA, pool.Address, caller, amountA); err != nil {
		return
	}
	if err = s.transferOut(pool.AssetB, pool.Address, caller, amountB); err != nil {
		return
	}
	balanceA, balanceB, err := s.poolBalances(pool)
	if err != nil {
		return
	}
	if err = s.commitReserves(pool, balanceA, balanceB); err != nil {
		return
	}
	if feeOn {
		pool.InvariantCheckpoint = lib.SqrtProduct(pool.ReserveA, pool.ReserveB)
	}
	return amountA, amountB, s.EventWithdraw(pool, caller, amountA, amountB, liquidity)
}
