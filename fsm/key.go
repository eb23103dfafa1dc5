package fsm

import (
	"encoding/binary"

	"github.com/millpond-labs/millpond/lib"
)

/* key.go contains prefix key logic for the underlying store */

var (
	poolPrefix        = []byte{1} // store key prefix for pool records
	pairPrefix        = []byte{2} // store key prefix for the asset pair to pool address mapping
	accountPrefix     = []byte{3} // store key prefix for asset balances
	claimPrefix       = []byte{4} // store key prefix for claim token balances
	claimSupplyPrefix = []byte{5} // store key prefix for claim token total supplies
	paramsPrefix      = []byte{6} // store key prefix for the governance parameters
	sequencePrefix    = []byte{7} // store key prefix for envelope replay sequences
)

/*
- Prefixes are used to allow 'grouping' and organization in a schemaless key-value database environment

- Iterating over a prefix enables operations over groups of similar datastructures (pools, accounts etc.)

- Length prefixed append is used to be able to easily separate the segments of a key

- BigEndianEncoding is used for uint64 to accommodate the 'lexicographical' sorting nature of the key-value database
*/
func PoolPrefix() []byte    { return lib.JoinLenPrefix(poolPrefix) }
func AccountPrefix() []byte { return lib.JoinLenPrefix(accountPrefix) }
func ClaimPrefix() []byte   { return lib.JoinLenPrefix(claimPrefix) }
func KeyForPool(address []byte) []byte {
	return lib.JoinLenPrefix(poolPrefix, address)
}
func KeyForPair(assetA, assetB uint64) []byte {
	return lib.JoinLenPrefix(pairPrefix, formatUint64(assetA), formatUint64(assetB))
}
func KeyForAccount(address []byte, asset uint64) []byte {
	return lib.JoinLenPrefix(accountPrefix, address, formatUint64(asset))
}
func KeyForAccountAssets(address []byte) []byte {
	return lib.JoinLenPrefix(accountPrefix, address)
}
func KeyForClaim(poolAddress, owner []byte) []byte {
	return lib.JoinLenPrefix(claimPrefix, poolAddress, owner)
}
func KeyForClaimsOfPool(poolAddress []byte) []byte {
	return lib.JoinLenPrefix(claimPrefix, poolAddress)
}
func KeyForClaimSupply(poolAddress []byte) []byte {
	return lib.JoinLenPrefix(claimSupplyPrefix, poolAddress)
}
func KeyForParams() []byte { return lib.JoinLenPrefix(paramsPrefix) }
func KeyForSequence(address []byte) []byte {
	return lib.JoinLenPrefix(sequencePrefix, address)
}

// AssetFromAccountKey() recovers the asset id from an account store key
func AssetFromAccountKey(k []byte) (uint64, lib.ErrorI) {
	segments := lib.DecodeLengthPrefixed(k)
	if len(segments) != 3 || len(segments[2]) != 8 {
		return 0, lib.ErrInvalidKey()
	}
	return binary.BigEndian.Uint64(segments[2]), nil
}

// OwnerFromClaimKey() recovers the owner address from a claim store key
func OwnerFromClaimKey(k []byte) ([]byte, lib.ErrorI) {
	segments := lib.DecodeLengthPrefixed(k)
	if len(segments) != 3 {
		return nil, lib.ErrInvalidKey()
	}
	return segments[2], nil
}

func formatUint64(u uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, u)
	return b
}
