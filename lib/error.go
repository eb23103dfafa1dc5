package lib

import (
	"fmt"
	"math"
)

type ErrorI interface {
	Code() ErrorCode     // Returns the error code
	Module() ErrorModule // Returns the error module
	error                // Implements the built-in error interface
}

var _ ErrorI = &Error{} // Ensures *Error implements ErrorI

type ErrorCode uint32 // Defines a type for error codes

type ErrorModule string // Defines a type for error modules

type Error struct {
	ECode   ErrorCode   `json:"code"`   // Error code
	EModule ErrorModule `json:"module"` // Error module
	Msg     string      `json:"msg"`    // Error message
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	// Constructs a new Error instance
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns module field
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code, and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeInvalidAddress    ErrorCode = 1
	CodeJSONMarshal       ErrorCode = 2
	CodeJSONUnmarshal     ErrorCode = 3
	CodeUnmarshal         ErrorCode = 4
	CodeMarshal           ErrorCode = 5
	CodeStringToBytes     ErrorCode = 6
	CodeWriteFile         ErrorCode = 7
	CodeReadFile          ErrorCode = 8
	CodeInvalidArgument   ErrorCode = 9
	CodeAmountFromString  ErrorCode = 10
	CodeAmountOverflow    ErrorCode = 11
	CodeDivideByZero      ErrorCode = 12
	CodeInvalidKey        ErrorCode = 13
	CodeNewPubKeyFromBytes ErrorCode = 14
	CodeSignatureSize     ErrorCode = 15
	CodeInvalidSignature  ErrorCode = 16
	CodeUnknownPageable   ErrorCode = 17
	CodeEmptyEventsTracker ErrorCode = 18
	CodeMaxEnvelopeSize   ErrorCode = 19
	CodeEnvelopeFoundInQueue ErrorCode = 20

	// Pool Module
	PoolModule ErrorModule = "pool"

	// Pool Module Error Codes
	CodeReentrant             ErrorCode = 1
	CodeForbidden             ErrorCode = 2
	CodeReserveOverflow       ErrorCode = 3
	CodeInsufficientLiquidity ErrorCode = 4
	CodeInsufficientAmounts   ErrorCode = 5
	CodeInvalidOutputAmount   ErrorCode = 6
	CodeInsufficientInput     ErrorCode = 7
	CodeInvariantViolation    ErrorCode = 8
	CodeTransferFailed        ErrorCode = 9
	CodePoolNotFound          ErrorCode = 10
	CodePoolExists            ErrorCode = 11
	CodeInvalidAssetPair      ErrorCode = 12
	CodeInsufficientFunds     ErrorCode = 13
	CodeInsufficientClaims    ErrorCode = 14
	CodeUnknownMessage        ErrorCode = 15
	CodeInvalidAmount         ErrorCode = 16
	CodeUnknownAsset          ErrorCode = 17
	CodeBalanceBelowReserve   ErrorCode = 18
	CodeReadGenesisFile       ErrorCode = 19
	CodeInvalidGenesis        ErrorCode = 20
	CodeInvalidRecipient      ErrorCode = 21
	CodeWrongStoreType        ErrorCode = 22
	CodeInvalidSequence       ErrorCode = 23
	CodeInvalidEnvelope       ErrorCode = 24

	// Store Module
	StorageModule ErrorModule = "store"

	// Store Module Error Codes
	CodeOpenDB        ErrorCode = 1
	CodeCloseDB       ErrorCode = 2
	CodeStoreSet      ErrorCode = 3
	CodeStoreGet      ErrorCode = 4
	CodeStoreDelete   ErrorCode = 5
	CodeStoreIter     ErrorCode = 6
	CodeCommitDB      ErrorCode = 7
	CodeNilKey        ErrorCode = 8

	// RPC Module
	RPCModule ErrorModule = "rpc"

	// RPC Module Error Codes
	CodeRPCTimeout       ErrorCode = 1
	CodeInvalidParams    ErrorCode = 2
	CodeNewFSM           ErrorCode = 3
	CodePostRequest      ErrorCode = 4
	CodeGetRequest       ErrorCode = 5
	CodeHttpStatus       ErrorCode = 6
	CodeReadBody         ErrorCode = 7
	CodeUnmarshalEnvelope ErrorCode = 8
)

// MAIN MODULE CONSTRUCTORS BELOW

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err.Error()))
}

func ErrStringToBytes(err error) ErrorI {
	return NewError(CodeStringToBytes, MainModule, fmt.Sprintf("stringToBytes() failed with err: %s", err.Error()))
}

func ErrInvalidAddress() ErrorI {
	return NewError(CodeInvalidAddress, MainModule, "address is invalid")
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err.Error()))
}

func ErrInvalidArgument() ErrorI {
	return NewError(CodeInvalidArgument, MainModule, "the argument is invalid")
}

func ErrAmountFromString(s string) ErrorI {
	return NewError(CodeAmountFromString, MainModule, fmt.Sprintf("unable to parse amount from string: %s", s))
}

func ErrAmountOverflow() ErrorI {
	return NewError(CodeAmountOverflow, MainModule, "amount exceeds 256 bits")
}

func ErrDivideByZero() ErrorI {
	return NewError(CodeDivideByZero, MainModule, "divide by zero")
}

func ErrInvalidKey() ErrorI {
	return NewError(CodeInvalidKey, MainModule, "key is invalid")
}

func ErrPubKeyFromBytes(err error) ErrorI {
	return NewError(CodeNewPubKeyFromBytes, MainModule, fmt.Sprintf("publicKeyFromBytes() failed with err: %s", err.Error()))
}

func ErrInvalidSignatureSize() ErrorI {
	return NewError(CodeSignatureSize, MainModule, "signature size is invalid")
}

func ErrInvalidSignature() ErrorI {
	return NewError(CodeInvalidSignature, MainModule, "signature is invalid")
}

func ErrUnknownPageable(t string) ErrorI {
	return NewError(CodeUnknownPageable, MainModule, fmt.Sprintf("pageable type %s is unknown", t))
}

func ErrEmptyEventsTracker() ErrorI {
	return NewError(CodeEmptyEventsTracker, MainModule, "events tracker is empty")
}

func ErrMaxEnvelopeSize() ErrorI {
	return NewError(CodeMaxEnvelopeSize, MainModule, "envelope exceeds the individual size limit")
}

func ErrEnvelopeFoundInQueue(hash string) ErrorI {
	return NewError(CodeEnvelopeFoundInQueue, MainModule, fmt.Sprintf("envelope %s is already in the queue", hash))
}
