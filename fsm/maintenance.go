package fsm

import (
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
)

// ForceSync() reconciles a pool's committed reserves with its actual asset balances,
// recovering a pool whose balances drifted through direct transfers
func (s *StateMachine) ForceSync(poolAddress []byte) lib.ErrorI {
	return s.guarded(poolAddress, func(pool *Pool) lib.ErrorI {
		balanceA, balanceB, err := s.poolBalances(pool)
		if err != nil {
			return err
		}
		return s.commitReserves(pool, balanceA, balanceB)
	})
}

// SkimExcess() pays out any balance a pool holds above its committed reserves,
// the counterpart of ForceSync that favors the recipient over the pool
func (s *StateMachine) SkimExcess(poolAddress, caller, recipient []byte) lib.ErrorI {
	return s.guarded(poolAddress, func(pool *Pool) lib.ErrorI {
		balanceA, balanceB, err := s.poolBalances(pool)
		if err != nil {
			return err
		}
		excessA := new(uint256.Int)
		if balanceA.Cmp(pool.ReserveA) > 0 {
			excessA.Sub(balanceA, pool.ReserveA)
			if err = s.transferOut(pool.AssetA, pool.Address, recipient, excessA); err != nil {
				return err
			}
		}
		excessB := new(uint256.Int)
		if balanceB.Cmp(pool.ReserveB) > 0 {
			excessB.Sub(balanceB, pool.ReserveB)
			if err = s.transferOut(pool.AssetB, pool.Address, recipient, excessB); err != nil {
				return err
			}
		}
		s.log.Debugf("Skimmed %s / %s from pool %s", lib.AmountToString(excessA), lib.AmountToString(excessB), pool.Address)
		return s.EventSkim(pool, caller, recipient, excessA, excessB)
	})
}

// ForceFeeCollection() settles the protocol fee share against the current reserves
// without waiting for the next liquidity event
func (s *StateMachine) ForceFeeCollection(poolAddress []byte) lib.ErrorI {
	return s.guarded(poolAddress, func(pool *Pool) lib.ErrorI {
		feeOn, err := s.mintFeeShare(pool)
		if err != nil {
			return err
		}
		if feeOn {
			pool.InvariantCheckpoint = lib.SqrtProduct(pool.ReserveA, pool.ReserveB)
		}
		return nil
	})
}
