package lib

import (
	"math/big"

	"github.com/holiman/uint256"
)

/* This file implements the wide integer arithmetic underneath the pool accounting */

// MaxReserve is the largest balance the reserve ledger may track per asset: 2^112 - 1.
// Balances above it abort the enclosing operation at commit time.
var MaxReserve = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// NewAmount() boxes a uint64 into a 256-bit amount
func NewAmount(u uint64) *uint256.Int { return uint256.NewInt(u) }

// CloneAmount() copies an amount so the caller may mutate freely; nil is treated as zero
func CloneAmount(a *uint256.Int) *uint256.Int {
	if a == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(a)
}

// AmountFromString() parses a base-10 amount
func AmountFromString(s string) (*uint256.Int, ErrorI) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, ErrAmountFromString(s)
	}
	a, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrAmountOverflow()
	}
	return a, nil
}

// AmountToString() renders an amount in base-10
func AmountToString(a *uint256.Int) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}

// AmountToBytes() encodes an amount as minimal big-endian bytes for the wire
func AmountToBytes(a *uint256.Int) []byte {
	if a == nil || a.IsZero() {
		return nil
	}
	return a.Bytes()
}

// AmountFromBytes() decodes a minimal big-endian amount from the wire
func AmountFromBytes(bz []byte) (*uint256.Int, ErrorI) {
	if len(bz) > 32 {
		return nil, ErrAmountOverflow()
	}
	return new(uint256.Int).SetBytes(bz), nil
}

// AmountToFloat() approximates an amount for telemetry gauges
func AmountToFloat(a *uint256.Int) float64 {
	if a == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	return f
}

// MinAmount() returns the smaller of two amounts
func MinAmount(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// SafeMulDiv() computes floor(a*b/den) routing the intermediate product through
// big.Int so it may exceed 256 bits
func SafeMulDiv(a, b, den *uint256.Int) (*uint256.Int, ErrorI) {
	if den == nil || den.IsZero() {
		return nil, ErrDivideByZero()
	}
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	product.Div(product, den.ToBig())
	res, overflow := uint256.FromBig(product)
	if overflow {
		return nil, ErrAmountOverflow()
	}
	return res, nil
}

// SqrtProduct() computes isqrt(a*b), the geometric mean invariant of a pair of balances.
// The root of a 512-bit product always fits in 256 bits.
func SqrtProduct(a, b *uint256.Int) *uint256.Int {
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	root, _ := uint256.FromBig(product.Sqrt(product))
	return root
}

// EncodeUQ112() returns the UQ112.112 fixed point ratio num/den.
// num and den are bounded by MaxReserve so the shift cannot overflow.
func EncodeUQ112(num, den *uint256.Int) *uint256.Int {
	shifted := new(uint256.Int).Lsh(num, 112)
	return shifted.Div(shifted, den)
}

// AccumulatePrice() adds ratio*elapsed to the accumulator modulo 2^256.
// Overflow wraps on purpose: consumers difference two observations over a
// window, so absolute values carry no meaning.
func AccumulatePrice(acc, ratio *uint256.Int, elapsed uint32) *uint256.Int {
	term := new(uint256.Int).Mul(ratio, uint256.NewInt(uint64(elapsed)))
	return new(uint256.Int).Add(acc, term)
}
