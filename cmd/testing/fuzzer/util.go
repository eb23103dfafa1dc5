package main

import (
	"math"
	"math/rand"
	"strconv"
	"sync"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

// DependentState caches the balances and sequences the fuzzer has spent locally,
// it is thrown away whenever the engine commits a tick
type DependentState struct {
	sync.RWMutex
	tick      uint32
	accounts  map[string]*fsm.Account
	sequences map[string]uint64
}

func (d *DependentState) Reset(tick uint32) {
	d.tick = tick
	d.accounts = make(map[string]*fsm.Account)
	d.sequences = make(map[string]uint64)
}

func (d *DependentState) GetAccount(address crypto.AddressI, asset uint64) (*fsm.Account, bool) {
	d.RLock()
	defer d.RUnlock()
	account, ok := d.accounts[accountKey(address.Bytes(), asset)]
	return account, ok
}

func (d *DependentState) SetAccount(account *fsm.Account) {
	d.Lock()
	defer d.Unlock()
	d.accounts[accountKey(account.Address, account.Asset)] = account
}

func (d *DependentState) GetSequence(address crypto.AddressI) (uint64, bool) {
	d.RLock()
	defer d.RUnlock()
	sequence, ok := d.sequences[address.String()]
	return sequence, ok
}

func (d *DependentState) SetSequence(address crypto.AddressI, sequence uint64) {
	d.Lock()
	defer d.Unlock()
	d.sequences[address.String()] = sequence
}

func accountKey(address []byte, asset uint64) string {
	return lib.BytesToString(address) + ":" + strconv.FormatUint(asset, 10)
}

func (f *Fuzzer) getRandomAmountUpTo(limit *uint256.Int) *uint256.Int {
	bound := int64(math.MaxInt64 - 1)
	if limit.IsUint64() && limit.Uint64() < math.MaxInt64 {
		bound = int64(limit.Uint64())
	}
	return lib.NewAmount(uint64(rand.Int63n(bound + 1)))
}

func (f *Fuzzer) getRandomKeyGroup() *crypto.KeyGroup {
	return crypto.NewKeyGroup(&f.config.PrivateKeys[rand.Intn(len(f.config.PrivateKeys))])
}

func (f *Fuzzer) getRandomAsset() uint64 {
	if rand.Intn(2) == 0 {
		return AssetA
	}
	return AssetB
}

// submit wraps a message into a signed envelope under the next free sequence and
// hands it to the node
func (f *Fuzzer) submit(from *crypto.KeyGroup, msg fsm.MessageI) lib.ErrorI {
	envelope, err := fsm.NewEnvelope(msg, f.nextSequence(from.Address))
	if err != nil {
		return err
	}
	if err = envelope.Sign(from.PrivateKey); err != nil {
		return err
	}
	hash, err := f.client.Envelope(envelope)
	if err != nil {
		return err
	}
	f.log.Infof("Executed valid %s envelope: %s", msg.Name(), *hash)
	return nil
}

func newEnvelopeBadSignature(pk crypto.PrivateKeyI, msg fsm.MessageI, sequence uint64) (*fsm.Envelope, lib.ErrorI) {
	envelope, err := fsm.NewEnvelope(msg, sequence)
	if err != nil {
		return nil, err
	}
	envelope.PublicKey = pk.PublicKey().Bytes()
	signBytes, err := envelope.GetSignBytes()
	if err != nil {
		return nil, err
	}
	switch rand.Intn(4) {
	case 0:
		envelope.Signature = pk.Sign([]byte("foo"))
	case 1:
		envelope.PublicKey = nil
		envelope.Signature = pk.Sign(signBytes)
	case 2:
		envelope.Signature = nil
	case 3:
		envelope.Signature = []byte("foo")
	}
	return envelope, nil
}
