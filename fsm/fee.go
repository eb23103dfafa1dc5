package fsm

import (
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
)

// ComputeFeeShare() returns the claim tokens to mint so the fee recipient captures a sixth
// of the pool's invariant growth since the last checkpoint:
//
//	fee = supply * (current - checkpoint) / (4*current + checkpoint)
//
// where current and checkpoint are isqrt(reserveA*reserveB) now and at the last settlement.
// The division truncates, favoring existing claim holders
func ComputeFeeShare(supply, current, checkpoint *uint256.Int) (*uint256.Int, lib.ErrorI) {
	growth := new(uint256.Int).Sub(current, checkpoint)
	den := new(uint256.Int).Mul(current, lib.NewAmount(4))
	den.Add(den, checkpoint)
	return lib.SafeMulDiv(supply, growth, den)
}

// mintFeeShare() settles the accrued protocol fee share before liquidity changes hands.
// With the fee disabled a stale checkpoint is cleared so growth accrued in the meantime
// is forgiven rather than charged retroactively on re-enable. Returns whether the fee
// is currently enabled so callers can refresh the checkpoint after committing reserves
func (s *StateMachine) mintFeeShare(pool *Pool) (feeEnabled bool, err lib.ErrorI) {
	params, err := s.GetParams()
	if err != nil {
		return
	}
	feeEnabled = params.FeeEnabled
	if !feeEnabled {
		if !pool.InvariantCheckpoint.IsZero() {
			pool.InvariantCheckpoint = lib.NewAmount(0)
		}
		return
	}
	// a zero checkpoint means no settlement basis yet
	if pool.InvariantCheckpoint.IsZero() {
		return
	}
	current := lib.SqrtProduct(pool.ReserveA, pool.ReserveB)
	// only growth is charged; a shrunken invariant just waits for the next checkpoint
	if current.Cmp(pool.InvariantCheckpoint) <= 0 {
		return
	}
	supply, err := s.ClaimSupply(pool.Address)
	if err != nil {
		return
	}
	fee, err := ComputeFeeShare(supply, current, pool.InvariantCheckpoint)
	if err != nil {
		return
	}
	if fee.IsZero() {
		return
	}
	if err = s.MintClaims(pool.Address, params.FeeRecipient, fee); err != nil {
		return
	}
	s.metrics.UpdateFeeShareMetrics()
	s.log.Debugf("Minted %s fee share claims on pool %s", lib.AmountToString(fee), pool.Address)
	return feeEnabled, s.EventFeeShare(pool, params.FeeRecipient, fee)
}
