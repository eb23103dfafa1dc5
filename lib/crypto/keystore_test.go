package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreImport(t *testing.T) {
	password := []byte("password")
	// pre-create a new private key
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// get the address
	address := private.PublicKey().Address().Bytes()
	// encrypt the private key
	encrypted, err := EncryptPrivateKey(private.PublicKey().Bytes(), private.Bytes(), password)
	require.NoError(t, err)
	// create a new in-memory keystore
	ks := NewKeystoreInMemory()
	// execute the function call
	require.NoError(t, ks.Import(encrypted, QueryOpts{Address: address}))
	// check the key was imported
	got, err := ks.GetKey(address, string(password))
	require.NoError(t, err)
	// validate got vs expected
	require.EqualExportedValues(t, private, got)
}

func TestKeystoreImportRaw(t *testing.T) {
	password := "password"
	// pre-create a new private key
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// get the address
	address := private.PublicKey().Address().Bytes()
	// create a new in-memory keystore
	ks := NewKeystoreInMemory()
	// execute the function call
	gotAddress, err := ks.ImportRaw(private.Bytes(), password, "heron")
	require.NoError(t, err)
	// validate got address vs expected
	require.Equal(t, hex.EncodeToString(address), gotAddress)
	// check the key resolves by address
	got, err := ks.GetKeyGroup(password, QueryOpts{Address: address})
	require.NoError(t, err)
	// validate got vs expected private key
	require.EqualExportedValues(t, private, got.PrivateKey)
	// validate got vs expected public key
	require.EqualExportedValues(t, private.PublicKey(), got.PublicKey)
	// check the key resolves by nickname too
	got, err = ks.GetKeyGroup(password, QueryOpts{Nickname: "heron"})
	require.NoError(t, err)
	require.EqualExportedValues(t, private, got.PrivateKey)
}

func TestKeystoreWrongPassword(t *testing.T) {
	// pre-create a new private key
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	address := private.PublicKey().Address().Bytes()
	// create a new in-memory keystore
	ks := NewKeystoreInMemory()
	_, err = ks.ImportRaw(private.Bytes(), "password", "")
	require.NoError(t, err)
	// decrypting with the wrong password must fail
	_, err = ks.GetKey(address, "not-the-password")
	require.Error(t, err)
	// an empty password never resolves a key group
	_, err = ks.GetKeyGroup("", QueryOpts{Address: address})
	require.ErrorContains(t, err, "invalid password")
}

func TestKeystoreDeleteKey(t *testing.T) {
	password := "password"
	// pre-create a new private key
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// get the address
	address := private.PublicKey().Address().Bytes()
	// create a new in-memory keystore
	ks := NewKeystoreInMemory()
	_, err = ks.ImportRaw(private.Bytes(), password, "heron")
	require.NoError(t, err)
	// delete by address clears the nickname index too
	ks.DeleteKey(QueryOpts{Address: address})
	_, err = ks.GetKey(address, password)
	require.ErrorContains(t, err, "key not found")
	_, err = ks.GetKeyGroup(password, QueryOpts{Nickname: "heron"})
	require.ErrorContains(t, err, "key not found")
	// re-import and delete by nickname clears the address index too
	_, err = ks.ImportRaw(private.Bytes(), password, "heron")
	require.NoError(t, err)
	ks.DeleteKey(QueryOpts{Nickname: "heron"})
	_, err = ks.GetKey(address, password)
	require.ErrorContains(t, err, "key not found")
	_, err = ks.GetKeyGroup(password, QueryOpts{Nickname: "heron"})
	require.ErrorContains(t, err, "key not found")
}

func TestKeystoreFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	password := "password"
	// pre-create a new private key
	private, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	address := private.PublicKey().Address().Bytes()
	// create, populate, and save
	ks := NewKeystoreInMemory()
	_, err = ks.ImportRaw(private.Bytes(), password, "heron")
	require.NoError(t, err)
	require.NoError(t, ks.SaveToFile(dir))
	// reload and decrypt
	reloaded, err := NewKeystoreFromFile(dir)
	require.NoError(t, err)
	got, err := reloaded.GetKey(address, password)
	require.NoError(t, err)
	require.EqualExportedValues(t, private, got)
}
