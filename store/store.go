package store

import (
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/millpond-labs/millpond/lib"
)

// enforce the StoreI interface
var _ lib.StoreI = &Store{}

const (
	latestVersionKey = "v/" // raw key holding the last committed version of the store
	statePrefix      = "s/" // key space for pool and ledger state
	eventPrefix      = "e/" // key space for events indexed by tick
)

/*
	Store is the persistence layer of the node, a thin versioned wrapper over BadgerDB
	running in managed mode so that every Commit() is stamped with the version it
	produced. It is split into two logical key spaces that share one atomic writer:

	- StateStore: the current pool records, claim balances, asset accounts and params
	- EventStore: the pool lifecycle events indexed by the tick that emitted them

	All writes land in a single managed transaction, so a Commit() either persists the
	state mutations of a tick together with its events or persists nothing at all.
*/

type Store struct {
	version uint64       // last committed version of the store
	db      *badger.DB   // the underlying key value database
	writer  *badger.Txn  // the in-progress writes of the next version
	ss      *TxnWrapper  // StateStore: reads and writes under the state prefix
	*EventIndexer        // EventStore: reads and writes under the event prefix
	metrics *lib.Metrics // telemetry for commit times and entry counts
	log     lib.LoggerI  // the logger of the store
	l       sync.Mutex   // guards commit, reset, and copy
}

// New() creates a new instance of a Store with the given configuration
func New(c lib.Config, metrics *lib.Metrics, log lib.LoggerI) (*Store, lib.ErrorI) {
	if c.StoreConfig.InMemory {
		return NewStoreInMemory(log)
	}
	path := filepath.Join(c.DataDirPath, c.DBName)
	db, err := badger.OpenManaged(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	log.Infof("Opened database at %s", path)
	return openStore(db, metrics, log)
}

// NewStoreInMemory() creates a new ephemeral instance of a Store, used for testing
func NewStoreInMemory(log lib.LoggerI) (*Store, lib.ErrorI) {
	db, err := badger.OpenManaged(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return openStore(db, nil, log)
}

// openStore() initializes a Store over an already opened database at its latest committed version
func openStore(db *badger.DB, metrics *lib.Metrics, log lib.LoggerI) (*Store, lib.ErrorI) {
	version, err := getLatestVersion(db)
	if err != nil {
		return nil, err
	}
	s := &Store{
		version: version,
		db:      db,
		metrics: metrics,
		log:     log,
	}
	s.newWriter()
	return s, nil
}

// newWriter() starts a fresh managed transaction reading at the last committed version
// and points both key spaces at it
func (s *Store) newWriter() {
	s.writer = s.db.NewTransactionAt(s.version, true)
	if s.ss == nil {
		s.ss = NewTxnWrapper(s.writer, s.log, []byte(statePrefix))
		s.EventIndexer = &EventIndexer{db: NewTxnWrapper(s.writer, s.log, []byte(eventPrefix))}
		return
	}
	s.ss.setDB(s.writer)
	s.EventIndexer.setDB(s.writer)
}

// Get() retrieves the value for the key from the state store
func (s *Store) Get(key []byte) ([]byte, lib.ErrorI) { return s.ss.Get(key) }

// Set() writes the key value pair to the state store
func (s *Store) Set(key, value []byte) lib.ErrorI { return s.ss.Set(key, value) }

// Delete() removes the key from the state store
func (s *Store) Delete(key []byte) lib.ErrorI { return s.ss.Delete(key) }

// Iterator() returns an ascending iterator over the state store for the given prefix
func (s *Store) Iterator(prefix []byte) (lib.IteratorI, lib.ErrorI) { return s.ss.Iterator(prefix) }

// RevIterator() returns a descending iterator over the state store for the given prefix
func (s *Store) RevIterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	return s.ss.RevIterator(prefix)
}

// NewTxn() returns a discardable overlay whose Write() lands in the state store
func (s *Store) NewTxn() lib.StoreTxnI { return NewTxn(s) }

// DB() returns the underlying database handle
func (s *Store) DB() *badger.DB { return s.db }

// Version() returns the last committed version of the store
func (s *Store) Version() uint64 { return s.version }

// Copy() opens an independent view of the store at the last committed version;
// writes pending in the current writer are not carried over
func (s *Store) Copy() (lib.StoreI, lib.ErrorI) {
	s.l.Lock()
	defer s.l.Unlock()
	return openStore(s.db, s.metrics, s.log)
}

// Commit() atomically persists the pending writes of both key spaces, stamps them
// with the next version, and starts a fresh writer at that version
func (s *Store) Commit() (version uint64, err lib.ErrorI) {
	s.l.Lock()
	defer s.l.Unlock()
	start := time.Now()
	s.version++
	// persist the new version marker in the same batch as the writes it covers
	if e := s.writer.Set([]byte(latestVersionKey), encodeBigEndian(s.version)); e != nil {
		return 0, ErrStoreSet(e)
	}
	entries := s.ss.entries + s.EventIndexer.db.entries + 1
	if e := s.writer.CommitAt(s.version, nil); e != nil {
		return 0, ErrCommitDB(e)
	}
	s.metrics.UpdateStoreMetrics(entries, start)
	s.log.Debugf("Committed store version %d with %d entries", s.version, entries)
	s.newWriter()
	return s.version, nil
}

// Discard() throws away the pending writes of the current writer
func (s *Store) Discard() { s.writer.Discard() }

// Reset() throws away the pending writes and starts a fresh writer at the same version
func (s *Store) Reset() {
	s.l.Lock()
	defer s.l.Unlock()
	s.writer.Discard()
	s.newWriter()
}

// Close() discards any pending writes and closes the underlying database
func (s *Store) Close() lib.ErrorI {
	s.l.Lock()
	defer s.l.Unlock()
	s.writer.Discard()
	if err := s.db.Close(); err != nil {
		return ErrCloseDB(err)
	}
	return nil
}

// getLatestVersion() reads the version marker at the maximum timestamp; a missing
// marker means the database is brand new
func getLatestVersion(db *badger.DB) (uint64, lib.ErrorI) {
	txn := db.NewTransactionAt(math.MaxUint64, false)
	defer txn.Discard()
	item, err := txn.Get([]byte(latestVersionKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, ErrStoreGet(err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return 0, ErrStoreGet(err)
	}
	if len(value) != 8 {
		return 0, ErrStoreGet(errors.New("malformed version marker"))
	}
	return binary.BigEndian.Uint64(value), nil
}
