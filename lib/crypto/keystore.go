package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	KeyStoreName = "keystore.json"
)

// NewKeyGroup() generates a public key and address that pairs with the private key
func NewKeyGroup(pk PrivateKeyI) *KeyGroup {
	pub := pk.PublicKey()
	return &KeyGroup{
		Address:    pub.Address(),
		PublicKey:  pub,
		PrivateKey: pk,
	}
}

// KeyGroup is a structure that holds the Address and PublicKey that corresponds to PrivateKey
type KeyGroup struct {
	Address    AddressI    // short version of the public key
	PublicKey  PublicKeyI  // the public code that can cryptographically verify signatures from the private key
	PrivateKey PrivateKeyI // the secret code that is capable of producing digital signatures
}

// Keystore represents a lightweight database of private keys that are encrypted at rest
type Keystore struct {
	ByAddress  map[string]*EncryptedPrivateKey
	ByNickname map[string]*EncryptedPrivateKey
}

// QueryOpts selects a keystore entry by address or nickname
type QueryOpts struct {
	Address  []byte
	Nickname string
}

// NewKeystoreInMemory() creates a new in memory keystore
func NewKeystoreInMemory() *Keystore {
	return &Keystore{
		ByAddress:  make(map[string]*EncryptedPrivateKey),
		ByNickname: make(map[string]*EncryptedPrivateKey),
	}
}

// NewKeystoreFromFile() creates a new keystore object from a file, or an empty one if no file exists
func NewKeystoreFromFile(dataDirPath string) (*Keystore, error) {
	path := filepath.Join(dataDirPath, KeyStoreName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewKeystoreInMemory(), nil
	}
	ksBz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ks := NewKeystoreInMemory()
	return ks, json.Unmarshal(ksBz, ks)
}

// SaveToFile() persists the keystore to the data directory
func (ks *Keystore) SaveToFile(dataDirPath string) error {
	bz, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDirPath, KeyStoreName), bz, os.ModePerm)
}

// Import() adds an already encrypted private key to the store under its address and nickname
func (ks *Keystore) Import(encrypted *EncryptedPrivateKey, opts QueryOpts) error {
	if opts.Address == nil && opts.Nickname == "" {
		return fmt.Errorf("an address or nickname is required")
	}
	encrypted.Nickname = opts.Nickname
	if opts.Address != nil {
		ks.ByAddress[hex.EncodeToString(opts.Address)] = encrypted
	}
	if opts.Nickname != "" {
		ks.ByNickname[opts.Nickname] = encrypted
	}
	return nil
}

// ImportRaw() encrypts a plaintext private key with the password and adds it to the store
func (ks *Keystore) ImportRaw(privateKeyBytes []byte, password, nickname string) (address string, err error) {
	privateKey, err := NewPrivateKeyFromBytes(privateKeyBytes)
	if err != nil {
		return
	}
	publicKey := privateKey.PublicKey()
	encrypted, err := EncryptPrivateKey(publicKey.Bytes(), privateKeyBytes, []byte(password))
	if err != nil {
		return
	}
	address = publicKey.Address().String()
	encrypted.Nickname = nickname
	ks.ByAddress[address] = encrypted
	if nickname != "" {
		ks.ByNickname[nickname] = encrypted
	}
	return
}

// GetKey() returns the PrivateKeyI interface for an address and decrypts it using the password
func (ks *Keystore) GetKey(address []byte, password string) (PrivateKeyI, error) {
	v, ok := ks.ByAddress[hex.EncodeToString(address)]
	if !ok {
		return nil, fmt.Errorf("key not found")
	}
	return DecryptPrivateKey(v, []byte(password))
}

// GetKeyGroup() returns the full keygroup for an address or nickname and decrypts the private key using the password
func (ks *Keystore) GetKeyGroup(password string, opts QueryOpts) (*KeyGroup, error) {
	v := ks.lookup(opts)
	if v == nil {
		return nil, fmt.Errorf("key not found")
	}
	if password == "" {
		return nil, fmt.Errorf("invalid password")
	}
	pk, err := DecryptPrivateKey(v, []byte(password))
	if err != nil {
		return nil, err
	}
	return NewKeyGroup(pk), nil
}

// DeleteKey() removes a private key from both indexes given an address or nickname
func (ks *Keystore) DeleteKey(opts QueryOpts) {
	v := ks.lookup(opts)
	if v == nil {
		return
	}
	if v.Nickname != "" {
		delete(ks.ByNickname, v.Nickname)
	}
	// the address is recoverable from the embedded public key when deleting by nickname
	if opts.Address == nil {
		if pub, err := NewPublicKeyFromString(v.PublicKey); err == nil {
			opts.Address = pub.Address().Bytes()
		}
	}
	delete(ks.ByAddress, hex.EncodeToString(opts.Address))
}

// lookup() resolves a keystore entry by address first, then nickname
func (ks *Keystore) lookup(opts QueryOpts) *EncryptedPrivateKey {
	if opts.Address != nil {
		return ks.ByAddress[hex.EncodeToString(opts.Address)]
	}
	if opts.Nickname != "" {
		return ks.ByNickname[opts.Nickname]
	}
	return nil
}

// EncryptedPrivateKey represents an encrypted form of a private key, including the public key,
// salt used in key derivation, and the encrypted private key itself
type EncryptedPrivateKey struct {
	PublicKey string `json:"publicKey"`
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
	Nickname  string `json:"nickname"`
}

// EncryptPrivateKey creates an encrypted private key by generating a random salt
// and deriving an encryption key with the KDF, and finally encrypting key using AES-GCM
func EncryptPrivateKey(publicKey, privateKey, password []byte) (*EncryptedPrivateKey, error) {
	// generate random 16 bytes salt
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	// derive an AES-GCM encryption key and nonce using the password and salt
	gcm, nonce, err := kdf(password, salt)
	if err != nil {
		return nil, err
	}
	// encrypt the private key with AES-GCM using the derived key and nonce
	return &EncryptedPrivateKey{
		PublicKey: hex.EncodeToString(publicKey),
		Salt:      hex.EncodeToString(salt),
		Encrypted: hex.EncodeToString(gcm.Seal(nil, nonce, privateKey, nil)),
	}, nil
}

// DecryptPrivateKey takes an EncryptedPrivateKey and decrypts it to a PrivateKeyI interface using the password
func DecryptPrivateKey(epk *EncryptedPrivateKey, password []byte) (pk PrivateKeyI, err error) {
	salt, err := hex.DecodeString(epk.Salt)
	if err != nil {
		return nil, err
	}
	encrypted, err := hex.DecodeString(epk.Encrypted)
	if err != nil {
		return nil, err
	}
	gcm, nonce, err := kdf(password, salt)
	if err != nil {
		return nil, err
	}
	plainText, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, err
	}
	return NewPrivateKeyFromBytes(plainText)
}

// kdf derives an AES-GCM encryption key and nonce from a password and salt using Argon2 key derivation
// This key is used to initialize AES-GCM, and a 12-byte nonce is returned for encryption
func kdf(password, salt []byte) (gcm cipher.AEAD, nonce []byte, err error) {
	// use Argon2 to derive a 32 byte key from the password and salt
	key := argon2.Key(password, salt, 3, 32*1024, 4, 32)
	// init AES block cipher with the derived key
	block, err := aes.NewCipher(key)
	if err != nil {
		return
	}
	// init AES-GCM mode with the AES cipher block
	if gcm, err = cipher.NewGCM(block); err != nil {
		return
	}
	// return the gcm and the 12 byte nonce
	return gcm, key[:12], nil
}

// UnmarshalJSON() implements the json.Unmarshaler interface for KeyGroup
func (k *KeyGroup) UnmarshalJSON(b []byte) error {
	j := new(struct {
		Address    string `json:"address"`
		PublicKey  string `json:"publicKey"`
		PrivateKey string `json:"privateKey"`
	})
	if err := json.Unmarshal(b, j); err != nil {
		return err
	}
	address, err := NewAddressFromString(j.Address)
	if err != nil {
		return err
	}
	publicKey, err := NewPublicKeyFromString(j.PublicKey)
	if err != nil {
		return err
	}
	privateKey, err := NewPrivateKeyFromString(j.PrivateKey)
	if err != nil {
		return err
	}
	*k = KeyGroup{
		Address:    address,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}
	return nil
}

// MarshalJSON() implements the json.Marshaller interface for KeyGroup
func (k *KeyGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address    string `json:"address"`
		PublicKey  string `json:"publicKey"`
		PrivateKey string `json:"privateKey"`
	}{
		Address:    k.Address.String(),
		PublicKey:  k.PublicKey.String(),
		PrivateKey: k.PrivateKey.String(),
	})
}
