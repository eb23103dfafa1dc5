package fsm

import (
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
)

// commitReserves() reconciles a pool record with its observed balances; this is the only
// place reserves mutate. Before the overwrite, the cumulative price accumulators integrate
// the previous reserve ratio over the ticks elapsed since the last commit, which is what
// makes time weighted average price observation possible downstream
func (s *StateMachine) commitReserves(pool *Pool, balanceA, balanceB *uint256.Int) lib.ErrorI {
	// both balances must fit the 112 bit reserve bound
	if balanceA.Cmp(lib.MaxReserve) > 0 || balanceB.Cmp(lib.MaxReserve) > 0 {
		return ErrReserveOverflow()
	}
	// subtraction wraps around the uint32 tick domain
	elapsed := s.tick - pool.LastUpdateTick
	// a zero reserve has no defined price, so the accumulators only advance when both sides were funded
	if elapsed > 0 && !pool.ReserveA.IsZero() && !pool.ReserveB.IsZero() {
		pool.CumulativePriceA = lib.AccumulatePrice(pool.CumulativePriceA, lib.EncodeUQ112(pool.ReserveB, pool.ReserveA), elapsed)
		pool.CumulativePriceB = lib.AccumulatePrice(pool.CumulativePriceB, lib.EncodeUQ112(pool.ReserveA, pool.ReserveB), elapsed)
	}
	pool.ReserveA, pool.ReserveB = lib.CloneAmount(balanceA), lib.CloneAmount(balanceB)
	pool.LastUpdateTick = s.tick
	if err := s.SetPool(pool); err != nil {
		return err
	}
	s.notifyPoolGauges(pool)
	return s.EventReserveSync(pool)
}

// notifyPoolGauges() refreshes the per pool telemetry gauges after a reserve commit
func (s *StateMachine) notifyPoolGauges(pool *Pool) {
	supply, err := s.ClaimSupply(pool.Address)
	if err != nil {
		return
	}
	s.metrics.UpdatePoolMetrics(pool.Address.String(), lib.AmountToFloat(pool.ReserveA), lib.AmountToFloat(pool.ReserveB), lib.AmountToFloat(supply))
}
