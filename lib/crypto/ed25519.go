package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

const (
	Ed25519PrivKeySize   = ed25519.PrivateKeySize
	Ed25519PubKeySize    = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
)

// Private Key Below

// ED25519PrivateKey is the operator signing key, based on the Curve25519 elliptic curve
// It produces the digital signatures that authorize envelopes submitted to the engine
type ED25519PrivateKey struct{ ed25519.PrivateKey }

// ensure ED25519PrivateKey satisfies the PrivateKeyI interface
var _ PrivateKeyI = &ED25519PrivateKey{}

// NewEd25519PrivateKey() generates a new ED25519 private key
func NewEd25519PrivateKey() (PrivateKeyI, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ED25519PrivateKey{PrivateKey: priv}, nil
}

// BytesToED25519Private() creates a new PrivateKeyI interface from ED25519 bytes
func BytesToED25519Private(bz []byte) PrivateKeyI {
	return &ED25519PrivateKey{PrivateKey: bz}
}

// Bytes() casts the private key to bytes
func (p *ED25519PrivateKey) Bytes() []byte { return p.PrivateKey }

// Sign() returns the digital signature of the message
func (p *ED25519PrivateKey) Sign(msg []byte) []byte { return ed25519.Sign(p.PrivateKey, msg) }

// PublicKey() returns the public key that pairs with this private key object
func (p *ED25519PrivateKey) PublicKey() PublicKeyI {
	return &ED25519PublicKey{p.PrivateKey.Public().(ed25519.PublicKey)}
}

// String() returns the hex string representation of the private key
func (p *ED25519PrivateKey) String() string { return hex.EncodeToString(p.Bytes()) }

// Equals() compares two private key objects and returns true if they are equal
func (p *ED25519PrivateKey) Equals(key PrivateKeyI) bool {
	return p.PrivateKey.Equal(ed25519.PrivateKey(key.Bytes()))
}

// MarshalJSON() implements the json.Marshaller interface for ED25519PrivateKey
func (p *ED25519PrivateKey) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

// UnmarshalJSON() implements the json.Unmarshaler interface for ED25519PrivateKey
func (p *ED25519PrivateKey) UnmarshalJSON(b []byte) (err error) {
	var hexString string
	if err = json.Unmarshal(b, &hexString); err != nil {
		return
	}
	bz, err := hex.DecodeString(hexString)
	if err != nil {
		return
	}
	p.PrivateKey = bz
	return
}

// Public Key Below

// ED25519PublicKey verifies ownership of the private key and the digital signatures it created
type ED25519PublicKey struct{ ed25519.PublicKey }

// ensure the ED25519PublicKey object satisfies the PublicKeyI interface
var _ PublicKeyI = &ED25519PublicKey{}

// NewPublicKeyED25519() returns a ED25519PublicKey reference that satisfies the PublicKeyI interface
func NewPublicKeyED25519(publicKey ed25519.PublicKey) *ED25519PublicKey {
	return &ED25519PublicKey{PublicKey: publicKey}
}

// BytesToED25519Public() creates a new PublicKeyI interface from ED25519 bytes
func BytesToED25519Public(bz []byte) PublicKeyI {
	return NewPublicKeyED25519(bz)
}

// Address() returns the short version of the public key
func (p *ED25519PublicKey) Address() AddressI {
	// hash the public key
	pubHash := Hash(p.Bytes())
	// take the first 20 bytes of the hash
	address := Address(pubHash[:AddressSize])
	// return the result
	return &address
}

// Bytes() casts the public key to bytes
func (p *ED25519PublicKey) Bytes() []byte { return p.PublicKey }

// String() returns the hex string representation of the public key
func (p *ED25519PublicKey) String() string { return hex.EncodeToString(p.Bytes()) }

// VerifyBytes() validates a digital signature was signed by the paired private key given the message signed
func (p *ED25519PublicKey) VerifyBytes(msg []byte, sig []byte) bool {
	if len(sig) != Ed25519SignatureSize || len(p.PublicKey) != Ed25519PubKeySize {
		return false
	}
	return ed25519.Verify(p.PublicKey, msg, sig)
}

// Equals() compares two public key objects and returns if the two are equal
func (p *ED25519PublicKey) Equals(i PublicKeyI) bool {
	return p.PublicKey.Equal(ed25519.PublicKey(i.Bytes()))
}

// MarshalJSON() implements the json.Marshaller interface for ED25519PublicKey
func (p *ED25519PublicKey) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

// UnmarshalJSON() implements the json.Unmarshaler interface for ED25519PublicKey
func (p *ED25519PublicKey) UnmarshalJSON(b []byte) (err error) {
	var hexString string
	if err = json.Unmarshal(b, &hexString); err != nil {
		return
	}
	bz, err := hex.DecodeString(hexString)
	if err != nil {
		return
	}
	p.PublicKey = bz
	return
}
