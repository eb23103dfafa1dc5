package fsm

import (
	"math/big"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
)

// Swap() trades against a pool: the caller asks for an exact outputAmount of the asset
// opposite to inputAsset, having already transferred the input to the pool address. The
// output is paid first and the input measured afterwards, so assets that tax transfers
// settle correctly; the fee adjusted invariant check then decides if the trade stands
func (s *StateMachine) Swap(poolAddress, caller []byte, inputAsset uint64, outputAmount *uint256.Int) lib.ErrorI {
	err := s.guarded(poolAddress, func(pool *Pool) lib.ErrorI {
		return s.swap(pool, caller, inputAsset, outputAmount)
	})
	// only invariant failures count as rejections, other errors never reached the check
	if err != nil && err.Module() == lib.PoolModule && err.Code() == lib.CodeInvariantViolation {
		s.metrics.UpdateSwapRejected()
	}
	return err
}

func (s *StateMachine) swap(pool *Pool, caller []byte, inputAsset uint64, outputAmount *uint256.Int) lib.ErrorI {
	reserveIn, reserveOut, outputAsset, err := pool.reserveFor(inputAsset)
	if err != nil {
		return err
	}
	// the requested output must be positive and strictly backed by the reserve
	if outputAmount == nil || outputAmount.IsZero() || outputAmount.Cmp(reserveOut) >= 0 {
		return ErrInvalidOutputAmount()
	}
	// snapshot the pre trade reserves for the invariant check
	reserveInBefore, reserveOutBefore := lib.CloneAmount(reserveIn), lib.CloneAmount(reserveOut)
	// optimistically pay the output out
	if err = s.transferOut(outputAsset, pool.Address, caller, outputAmount); err != nil {
		return err
	}
	// the input is whatever actually arrived above the committed reserve
	inputBalance, err := s.assets.BalanceOf(inputAsset, pool.Address)
	if err != nil {
		return err
	}
	if inputBalance.Cmp(reserveInBefore) <= 0 {
		return ErrInsufficientInput()
	}
	inputAmount := new(uint256.Int).Sub(inputBalance, reserveInBefore)
	if !CheckSwapInvariant(inputAmount, reserveInBefore, outputAmount, reserveOutBefore) {
		return ErrInvariantViolation()
	}
	balanceA, balanceB, err := s.poolBalances(pool)
	if err != nil {
		return err
	}
	if err = s.commitReserves(pool, balanceA, balanceB); err != nil {
		return err
	}
	s.metrics.UpdateSwapMetrics(pool.Address.String(), strconv.FormatUint(inputAsset, 10), lib.AmountToFloat(inputAmount))
	s.log.Debugf("Swapped %s of asset %d for %s on pool %s",
		lib.AmountToString(inputAmount), inputAsset, lib.AmountToString(outputAmount), pool.Address)
	return s.EventSwap(pool, caller, inputAsset, inputAmount, outputAmount)
}

// CheckSwapInvariant() verifies the fee adjusted constant product condition
//
//	(inputAmount*997) * (reserveOut - outputAmount) >= outputAmount * reserveIn * 1000
//
// charging a 0.3% fee on the input. Intermediates route through big.Int because the
// products may exceed 256 bits at the reserve bounds
func CheckSwapInvariant(inputAmount, reserveIn, outputAmount, reserveOut *uint256.Int) bool {
	left := new(big.Int).Mul(inputAmount.ToBig(), big.NewInt(997))
	left.Mul(left, new(big.Int).Sub(reserveOut.ToBig(), outputAmount.ToBig()))
	right := new(big.Int).Mul(outputAmount.ToBig(), reserveIn.ToBig())
	right.Mul(right, big.NewInt(1000))
	return left.Cmp(right) >= 0
}

// AmountOut() quotes the exact output the invariant permits for a given input,
// the closed form of the fee adjusted constant product over 256 bit amounts
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int) *uint256.Int {
	if amountIn == nil || amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return lib.NewAmount(0)
	}
	// amountInWithFee = amountIn * 997
	amountInWithFee := new(big.Int).Mul(amountIn.ToBig(), big.NewInt(997))
	// numerator = amountInWithFee * reserveOut
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut.ToBig())
	// denominator = reserveIn*1000 + amountInWithFee
	denominator := new(big.Int).Mul(reserveIn.ToBig(), big.NewInt(1000))
	denominator.Add(denominator, amountInWithFee)
	// integer flooring; the quotient is bounded by reserveOut
	out, _ := uint256.FromBig(new(big.Int).Div(numerator, denominator))
	return out
}
