package fsm

import (
	"runtime/debug"

	"github.com/millpond-labs/millpond/lib"
)

const (
	ProtocolVersion = 1
)

// StateMachine is the core component responsible for maintaining and updating pool state as
// ticks progress. It represents the collective state of all pools, asset balances, claim
// token ledgers and governance parameters
type StateMachine struct {
	store lib.RWStoreI

	ProtocolVersion uint64
	tick            uint32
	assets          AssetLedgerI
	events          *lib.EventsTracker
	metrics         *lib.Metrics
	Config          lib.Config
	log             lib.LoggerI
}

// New() creates a new instance of a StateMachine
func New(c lib.Config, store lib.StoreI, metrics *lib.Metrics, log lib.LoggerI) (*StateMachine, lib.ErrorI) {
	sm := &StateMachine{
		ProtocolVersion: ProtocolVersion,
		events:          new(lib.EventsTracker),
		metrics:         metrics,
		Config:          c,
		log:             log,
	}
	sm.assets = &accountLedger{sm}
	return sm, sm.Initialize(store)
}

// Initialize() initializes a StateMachine object using the StoreI
func (s *StateMachine) Initialize(db lib.StoreI) (err lib.ErrorI) {
	// tick N is the period that produces store version N
	s.tick, s.store = uint32(db.Version())+1, db
	if db.Version() == 0 {
		// if at version zero then init from the genesis file
		return s.NewFromGenesisFile()
	}
	return nil
}

// ApplyEnvelope() validates an envelope, consumes the sender sequence and executes the payload
// message against the state, rolling every effect back if any step fails
func (s *StateMachine) ApplyEnvelope(envelope []byte) (err lib.ErrorI) {
	// catch in case there's a panic
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(string(debug.Stack()))
			err = ErrInvalidEnvelope("panic during execution")
		}
	}()
	// validate the envelope and get the check result
	result, err := s.CheckEnvelope(envelope)
	if err != nil {
		return
	}
	// stamp events produced by this envelope with its hash
	s.events.Refer(result.hash)
	defer s.events.Refer("")
	return s.atomic(func() lib.ErrorI {
		// consume the sequence for the sender (replay protection)
		if e := s.SetAccountSequence(result.sender.Bytes(), result.envelope.Sequence); e != nil {
			return e
		}
		// handle the message (payload)
		return s.HandleMessage(result.sender.Bytes(), result.msg)
	})
}

// FlushEvents() drains the tracker and indexes each captured event under the current tick,
// assigning indices starting at startIndex. Call only after the producing operation succeeded
func (s *StateMachine) FlushEvents(startIndex uint64) (n uint64, err lib.ErrorI) {
	store, ok := s.store.(lib.StoreI)
	if !ok {
		return 0, ErrWrongStoreType()
	}
	events := s.events.Reset()
	for i, e := range events {
		e.Tick, e.Index = s.tick, startIndex+uint64(i)
		if err = store.IndexEvent(e); err != nil {
			return
		}
	}
	return uint64(len(events)), nil
}

// Copy() makes a clone of the state machine over a copy of the committed store
// this feature is used to maintain a parallel ephemeral state without affecting the underlying state machine
func (s *StateMachine) Copy() (*StateMachine, lib.ErrorI) {
	st, ok := s.store.(lib.StoreI)
	if !ok {
		return nil, ErrWrongStoreType()
	}
	storeCopy, err := st.Copy()
	if err != nil {
		return nil, err
	}
	sm := &StateMachine{
		store:           storeCopy,
		ProtocolVersion: s.ProtocolVersion,
		tick:            s.tick,
		events:          new(lib.EventsTracker),
		metrics:         s.metrics,
		Config:          s.Config,
		log:             s.log,
	}
	sm.assets = &accountLedger{sm}
	return sm, nil
}

// Set() upserts a key-value pair under a key
func (s *StateMachine) Set(k, v []byte) lib.ErrorI {
	store := s.Store()
	if err := store.Set(k, v); err != nil {
		return err
	}
	return nil
}

// Get() retrieves a key-value pair under a key
// NOTE: returns (nil, nil) if no value is found for that key
func (s *StateMachine) Get(key []byte) ([]byte, lib.ErrorI) {
	store := s.Store()
	bz, err := store.Get(key)
	if err != nil {
		return nil, err
	}
	return bz, nil
}

// Delete() deletes a key-value pair under a key
func (s *StateMachine) Delete(key []byte) lib.ErrorI {
	store := s.Store()
	if err := store.Delete(key); err != nil {
		return err
	}
	return nil
}

// Iterator() creates and returns an iterator for the state machine's underlying store
// starting at the specified key and iterating lexicographically
func (s *StateMachine) Iterator(key []byte) (lib.IteratorI, lib.ErrorI) {
	store := s.Store()
	it, err := store.Iterator(key)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// RevIterator() creates and returns an iterator for the state machine's underlying store
// starting at the end-prefix of the specified key and iterating reverse lexicographically
func (s *StateMachine) RevIterator(key []byte) (lib.IteratorI, lib.ErrorI) {
	store := s.Store()
	it, err := store.RevIterator(key)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// IterateAndExecute() creates an iterator and executes a callback function for each key-value pair
func (s *StateMachine) IterateAndExecute(prefix []byte, callback func(key, value []byte) lib.ErrorI) lib.ErrorI {
	it, err := s.Iterator(prefix)
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if err = callback(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return nil
}

// TxnWrap() is an atomicity and consistency feature that enables easy rollback of changes
// by discarding the transaction if an error occurs; wraps stack when already inside one
func (s *StateMachine) TxnWrap() (lib.StoreTxnI, lib.ErrorI) {
	var txn lib.StoreTxnI
	switch store := s.store.(type) {
	case lib.StoreI:
		txn = store.NewTxn()
	case lib.StoreTxnI:
		txn = store.NewTxn()
	default:
		return nil, ErrWrongStoreType()
	}
	s.SetStore(txn)
	return txn, nil
}

// atomic() runs op inside a wrapped transaction: effects are written through on success and
// fully discarded on failure, including any events recorded along the way
func (s *StateMachine) atomic(op func() lib.ErrorI) (err lib.ErrorI) {
	prev, mark := s.store, len(s.events.Events)
	txn, err := s.TxnWrap()
	if err != nil {
		return
	}
	defer s.SetStore(prev)
	if err = op(); err != nil {
		txn.Discard()
		s.events.Events = s.events.Events[:mark]
		return
	}
	return txn.Write()
}

// guarded() runs a mutating operation on a pool behind its reentrancy guard. The guard is
// checked against the live state so a reentrant call fails before touching anything, then
// held inside the wrapped transaction for the duration of the operation
func (s *StateMachine) guarded(address []byte, op func(pool *Pool) lib.ErrorI) lib.ErrorI {
	pool, err := s.GetPool(address)
	if err != nil {
		return err
	}
	if pool.GuardState == GuardLocked {
		return ErrReentrant()
	}
	return s.atomic(func() (err lib.ErrorI) {
		// hold the guard for the duration of the operation
		pool.GuardState = GuardLocked
		if err = s.SetPool(pool); err != nil {
			return
		}
		if err = op(pool); err != nil {
			return
		}
		// release the guard before the effects become visible
		pool.GuardState = GuardUnlocked
		return s.SetPool(pool)
	})
}

func (s *StateMachine) Store() lib.RWStoreI         { return s.store }
func (s *StateMachine) SetStore(store lib.RWStoreI) { s.store = store }
func (s *StateMachine) Tick() uint32                { return s.tick }
func (s *StateMachine) SetTick(tick uint32)         { s.tick = tick }
func (s *StateMachine) Discard()                    { s.store.(lib.StoreI).Discard() }
func (s *StateMachine) Reset() {
	s.events.Reset()
	s.store.(lib.StoreI).Reset()
}

// SetAssetLedger() overrides the backing asset ledger
func (s *StateMachine) SetAssetLedger(ledger AssetLedgerI) { s.assets = ledger }
