package crypto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	AddressSize = 20
)

// Address is the short version of a public key, the first 20 bytes of its hash
type Address []byte

// ensure the Address object satisfies the AddressI interface
var _ AddressI = &Address{}

// NewAddress() converts address bytes into an Address object
func NewAddress(bz []byte) AddressI {
	a := Address(bz)
	return &a
}

// NewAddressFromString() converts a hex string into an Address object
func NewAddressFromString(s string) (AddressI, error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(bz) != AddressSize {
		return nil, fmt.Errorf("invalid address size: %d", len(bz))
	}
	return NewAddress(bz), nil
}

// Bytes() casts the address to bytes
func (a *Address) Bytes() []byte { return *a }

// String() returns the hex string representation of the address
func (a *Address) String() string { return hex.EncodeToString(a.Bytes()) }

// Equals() compares two addresses and returns true if they are equal
func (a *Address) Equals(e AddressI) bool { return bytes.Equal(a.Bytes(), e.Bytes()) }

// Marshal() casts the address to bytes for persistence
func (a *Address) Marshal() ([]byte, error) {
	out := make([]byte, len(*a))
	copy(out, *a)
	return out, nil
}

// MarshalJSON() implements the json.Marshaller interface for Address
func (a *Address) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// UnmarshalJSON() implements the json.Unmarshaler interface for Address
func (a *Address) UnmarshalJSON(b []byte) (err error) {
	var hexString string
	if err = json.Unmarshal(b, &hexString); err != nil {
		return
	}
	bz, err := hex.DecodeString(hexString)
	if err != nil {
		return
	}
	*a = bz
	return
}
