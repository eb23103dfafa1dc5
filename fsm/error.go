package fsm

import (
	"fmt"

	"github.com/millpond-labs/millpond/lib"
)

// This file defines error objects for the pool state machine module

func ErrReentrant() lib.ErrorI {
	return lib.NewError(lib.CodeReentrant, lib.PoolModule, "reentrant call rejected")
}

func ErrForbidden() lib.ErrorI {
	return lib.NewError(lib.CodeForbidden, lib.PoolModule, "caller is not authorized for this operation")
}

func ErrReserveOverflow() lib.ErrorI {
	return lib.NewError(lib.CodeReserveOverflow, lib.PoolModule, "balance exceeds the maximum trackable reserve")
}

func ErrInsufficientLiquidity() lib.ErrorI {
	return lib.NewError(lib.CodeInsufficientLiquidity, lib.PoolModule, "deposit mints zero liquidity")
}

func ErrInsufficientAmounts() lib.ErrorI {
	return lib.NewError(lib.CodeInsufficientAmounts, lib.PoolModule, "withdrawal redeems zero of an asset")
}

func ErrInvalidOutputAmount() lib.ErrorI {
	return lib.NewError(lib.CodeInvalidOutputAmount, lib.PoolModule, "output amount is zero or not backed by the reserve")
}

func ErrInsufficientInput() lib.ErrorI {
	return lib.NewError(lib.CodeInsufficientInput, lib.PoolModule, "no input was received by the pool")
}

func ErrInvariantViolation() lib.ErrorI {
	return lib.NewError(lib.CodeInvariantViolation, lib.PoolModule, "swap violates the constant product invariant")
}

func ErrTransferFailed() lib.ErrorI {
	return lib.NewError(lib.CodeTransferFailed, lib.PoolModule, "asset transfer was refused")
}

func ErrPoolNotFound(address []byte) lib.ErrorI {
	return lib.NewError(lib.CodePoolNotFound, lib.PoolModule, fmt.Sprintf("pool %s not found", lib.HexBytes(address)))
}

func ErrPoolExists(assetA, assetB uint64) lib.ErrorI {
	return lib.NewError(lib.CodePoolExists, lib.PoolModule, fmt.Sprintf("pool for pair %d:%d already exists", assetA, assetB))
}

func ErrInvalidAssetPair() lib.ErrorI {
	return lib.NewError(lib.CodeInvalidAssetPair, lib.PoolModule, "asset pair is invalid")
}

func ErrInsufficientFunds() lib.ErrorI {
	return lib.NewError(lib.CodeInsufficientFunds, lib.PoolModule, "insufficient funds")
}

func ErrInsufficientClaims() lib.ErrorI {
	return lib.NewError(lib.CodeInsufficientClaims, lib.PoolModule, "insufficient claim balance")
}

func ErrUnknownMessage(x any) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownMessage, lib.PoolModule, fmt.Sprintf("message type %T is unknown", x))
}

func ErrUnknownMessageName(s string) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownMessage, lib.PoolModule, fmt.Sprintf("message name %s is unknown", s))
}

func ErrInvalidAmount() lib.ErrorI {
	return lib.NewError(lib.CodeInvalidAmount, lib.PoolModule, "amount is invalid")
}

func ErrUnknownAsset(asset uint64) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownAsset, lib.PoolModule, fmt.Sprintf("asset %d is not part of the pool", asset))
}

func ErrBalanceBelowReserve() lib.ErrorI {
	return lib.NewError(lib.CodeBalanceBelowReserve, lib.PoolModule, "pool balance fell below the tracked reserve")
}

func ErrReadGenesisFile(err error) lib.ErrorI {
	return lib.NewError(lib.CodeReadGenesisFile, lib.PoolModule, fmt.Sprintf("read genesis file failed with err: %s", err.Error()))
}

func ErrInvalidGenesis(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidGenesis, lib.PoolModule, fmt.Sprintf("genesis state is invalid: %s", reason))
}

func ErrInvalidRecipient() lib.ErrorI {
	return lib.NewError(lib.CodeInvalidRecipient, lib.PoolModule, "recipient address is invalid")
}

func ErrWrongStoreType() lib.ErrorI {
	return lib.NewError(lib.CodeWrongStoreType, lib.PoolModule, "wrong store type")
}

func ErrInvalidSequence() lib.ErrorI {
	return lib.NewError(lib.CodeInvalidSequence, lib.PoolModule, "envelope sequence is not newer than the last executed")
}

func ErrInvalidEnvelope(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidEnvelope, lib.PoolModule, fmt.Sprintf("envelope is invalid: %s", reason))
}
