// nolint:all
package main

import (
	"fmt"

	"github.com/millpond-labs/millpond/lib"
)

const (
	CodeExpectedInvalidEnvelope = 1
)

func ErrExpectedInvalid(msgType, reason string) lib.ErrorI {
	return lib.NewError(CodeExpectedInvalidEnvelope, lib.MainModule, fmt.Sprintf("expected invalid %s envelope due to %s but got no error", msgType, reason))
}
