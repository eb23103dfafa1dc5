package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	// create a new public key object
	public, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	// cast the public key to bytes
	addressBytes := Hash(public)[:AddressSize]
	// covert to an address object
	address := NewAddress(addressBytes)
	// validate string function
	require.Equal(t, address.String(), hex.EncodeToString(addressBytes))
	// validate bytes function
	require.Equal(t, addressBytes, address.Bytes())
	// validate equals function
	require.True(t, address.Equals(NewAddress(addressBytes)))
	// validate json marshalling
	marshalled, err := json.Marshal(address)
	require.NoError(t, err)
	// validate expected json vs got
	require.Equal(t, string(marshalled), "\""+address.String()+"\"")
	// validate unmarshalling
	unmarshalled := new(Address)
	require.NoError(t, json.Unmarshal(marshalled, unmarshalled))
	// validate expected unmarshalled
	require.Equal(t, address, unmarshalled)
}

func TestEd25519SignAndVerify(t *testing.T) {
	// generate a key pair
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	public := private.PublicKey()
	// sign an arbitrary message
	msg := []byte("drain the millpond")
	sig := private.Sign(msg)
	require.Len(t, sig, Ed25519SignatureSize)
	// the signature verifies against the message
	require.True(t, public.VerifyBytes(msg, sig))
	// and fails against a different message
	require.False(t, public.VerifyBytes([]byte("fill the millpond"), sig))
	// and fails with a truncated signature
	require.False(t, public.VerifyBytes(msg, sig[:10]))
}

func TestKeyHexRoundTrip(t *testing.T) {
	// generate a key pair
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// private key from hex string
	gotPrivate, err := NewPrivateKeyFromString(private.String())
	require.NoError(t, err)
	require.True(t, private.Equals(gotPrivate))
	// public key from hex string
	gotPublic, err := NewPublicKeyFromString(private.PublicKey().String())
	require.NoError(t, err)
	require.True(t, private.PublicKey().Equals(gotPublic))
	// malformed sizes are rejected
	_, err = NewPrivateKeyFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
	_, err = NewPublicKeyFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPrivateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator_key.json")
	// generate a key pair
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// write then read back
	require.NoError(t, PrivateKeyToFile(private, path))
	got, err := NewPrivateKeyFromFile(path)
	require.NoError(t, err)
	require.True(t, private.Equals(got))
}

func TestHashAndString(t *testing.T) {
	// generate arbitrary data
	msg := make([]byte, 100)
	_, err := rand.Read(msg)
	require.NoError(t, err)
	// hash the data using the hasher
	hasher := Hasher()
	_, err = hasher.Write(msg)
	require.NoError(t, err)
	byHasher := hasher.Sum(nil)
	// hash the data directly
	hash := Hash(msg)
	// check equivalence
	require.Equal(t, hash, byHasher)
	// ensure size is correct
	require.Len(t, hash, HashSize)
	// validate string
	require.Equal(t, hex.EncodeToString(hash), HashString(msg))
	// the short hash is the truncated hash
	require.Equal(t, hash[:AddressSize], ShortHash(msg))
	require.Equal(t, hex.EncodeToString(hash[:AddressSize]), ShortHashString(msg))
}
