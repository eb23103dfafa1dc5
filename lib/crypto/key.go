package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// PublicKeyI is an interface model for a cryptographic code shared openly, used to verify digital signatures of its paired private key
type PublicKeyI interface {
	// Address() creates a unique shorter fixed length version of the public key
	Address() AddressI
	// Bytes() casts the public key to bytes
	Bytes() []byte
	// VerifyBytes() verifies a digital signature from its corresponding private key
	VerifyBytes(msg []byte, sig []byte) bool
	// String() returns the hex string representation
	String() string
	// Equals() compares two PublicKeys and returns true if they're equal
	Equals(PublicKeyI) bool
	// models the json.Marshaller encoding interface
	json.Marshaler
	// models the json.Unmarshaler decoding interface
	json.Unmarshaler
}

// PrivateKeyI is an interface model for a secret cryptographic code that is used to produce digital signatures
type PrivateKeyI interface {
	Bytes() []byte
	Sign(msg []byte) []byte
	PublicKey() PublicKeyI
	// String() returns the hex string representation
	String() string
	Equals(PrivateKeyI) bool
	// models the json.Marshaller encoding interface
	json.Marshaler
	// models the json.Unmarshaler decoding interface
	json.Unmarshaler
}

// AddressI is an interface model for the short version of the Public Key
type AddressI interface {
	// Marshal() casts the address to bytes for persistence
	Marshal() ([]byte, error)
	// Bytes() casts the address to bytes
	Bytes() []byte
	// String() returns the hex string representation
	String() string
	Equals(AddressI) bool
	// models the json.Marshaller encoding interface
	json.Marshaler
	// models the json.Unmarshaler decoding interface
	json.Unmarshaler
}

// NewPublicKeyFromString() creates a new PublicKeyI interface from a hex string
func NewPublicKeyFromString(s string) (PublicKeyI, error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return NewPublicKeyFromBytes(bz)
}

// NewPublicKeyFromBytes() creates a new PublicKeyI interface from a byte slice
func NewPublicKeyFromBytes(bz []byte) (PublicKeyI, error) {
	if len(bz) != Ed25519PubKeySize {
		return nil, fmt.Errorf("unrecognized public key format")
	}
	return BytesToED25519Public(bz), nil
}

// NewPrivateKeyFromString() creates a new PrivateKeyI interface from a hex string
func NewPrivateKeyFromString(s string) (PrivateKeyI, error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return NewPrivateKeyFromBytes(bz)
}

// NewPrivateKeyFromBytes() creates a new PrivateKeyI interface from bytes
func NewPrivateKeyFromBytes(bz []byte) (PrivateKeyI, error) {
	if len(bz) != Ed25519PrivKeySize {
		return nil, fmt.Errorf("unrecognized private key format: %d", len(bz))
	}
	return BytesToED25519Private(bz), nil
}

// PrivateKeyToFile() writes a private key to a file located at filepath
func PrivateKeyToFile(key PrivateKeyI, filepath string) error {
	bz, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, bz, 0777)
}

// NewPrivateKeyFromFile() reads a private key from a file located at filepath
func NewPrivateKeyFromFile(filepath string) (PrivateKeyI, error) {
	bz, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	key := new(ED25519PrivateKey)
	if err = json.Unmarshal(bz, key); err != nil {
		return nil, err
	}
	return key, nil
}
