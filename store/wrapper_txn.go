package store

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/millpond-labs/millpond/lib"
)

// RWStoreI interface enforcement
var _ lib.RWStoreI = &TxnWrapper{}

// TxnWrapper is a wrapper over the badgerDB Txn object that conforms to the RWStoreI interface
type TxnWrapper struct {
	logger  lib.LoggerI
	db      *badger.Txn
	prefix  []byte
	entries int64 // count of writes since the last commit, for telemetry
}

// NewTxnWrapper() creates a new TxnWrapper with the provided params
func NewTxnWrapper(db *badger.Txn, logger lib.LoggerI, prefix []byte) *TxnWrapper {
	return &TxnWrapper{
		logger: logger,
		db:     db,
		prefix: prefix,
	}
}

// Get() retrieves the value associated with the key from the BadgerDB transaction
func (t *TxnWrapper) Get(k []byte) ([]byte, lib.ErrorI) {
	item, err := t.db.Get(lib.Append(t.prefix, k))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, ErrStoreGet(err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, ErrStoreGet(err)
	}
	return val, nil
}

// Set() stores the key-value pair in the BadgerDB transaction
func (t *TxnWrapper) Set(k, v []byte) lib.ErrorI {
	if k == nil {
		return ErrNilKey()
	}
	if err := t.db.Set(lib.Append(t.prefix, k), v); err != nil {
		return ErrStoreSet(err)
	}
	t.entries++
	return nil
}

// Delete() removes the key-value pair from the BadgerDB transaction
func (t *TxnWrapper) Delete(k []byte) lib.ErrorI {
	if k == nil {
		return ErrNilKey()
	}
	if err := t.db.Delete(lib.Append(t.prefix, k)); err != nil {
		return ErrStoreDelete(err)
	}
	t.entries++
	return nil
}

// Iterator() creates a new iterator for the given prefix in the BadgerDB transaction
func (t *TxnWrapper) Iterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	parent := t.db.NewIterator(badger.IteratorOptions{
		Prefix: lib.Append(t.prefix, prefix),
	})
	parent.Rewind()
	return &Iterator{
		logger: t.logger,
		parent: parent,
		prefix: t.prefix,
	}, nil
}

// RevIterator() creates a new reverse iterator for the given prefix in the BadgerDB transaction
func (t *TxnWrapper) RevIterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	newPrefix := lib.Append(t.prefix, prefix)
	parent := t.db.NewIterator(badger.IteratorOptions{
		Reverse: true,
		Prefix:  newPrefix,
	})
	seekLast(parent, newPrefix)
	return &Iterator{
		logger: t.logger,
		parent: parent,
		prefix: t.prefix,
	}, nil
}

// Close() discards the current transaction
func (t *TxnWrapper) Close() { t.db.Discard() }

// setDB() swaps the underlying transaction after a commit or reset
func (t *TxnWrapper) setDB(p *badger.Txn) { t.db, t.entries = p, 0 }

// seekLast() positions the iterator at the last key for the given prefix
func seekLast(it *badger.Iterator, prefix []byte) {
	it.Seek(prefixEnd(prefix))
}

// IteratorI interface enforcement
var _ lib.IteratorI = &Iterator{}

// Iterator implements a wrapper around BadgerDB's iterator but satisfies the IteratorI interface
type Iterator struct {
	logger lib.LoggerI
	parent *badger.Iterator
	prefix []byte
	err    error
}

// Valid() checks if the iterator item is valid
func (i *Iterator) Valid() bool { return i.parent.Valid() }

// Next() moves the iterator to the next item
func (i *Iterator) Next() { i.parent.Next() }

// Close() ends the iterator
func (i *Iterator) Close() { i.parent.Close() }

// Key() returns the key of the current item, without the store-level plane prefix
func (i *Iterator) Key() (key []byte) {
	return removePrefix(i.parent.Item().KeyCopy(nil), i.prefix)
}

// Value() returns the value of the current item
func (i *Iterator) Value() (value []byte) {
	value, err := i.parent.Item().ValueCopy(nil)
	if err != nil {
		i.err = err
		i.logger.Error(ErrStoreGet(err).Error())
		return nil
	}
	return
}

// removePrefix() strips the store-level plane prefix from a full database key
func removePrefix(b, prefix []byte) []byte { return b[len(prefix):] }

// prefixEnd() returns the first key lexicographically after every key that carries the prefix
func prefixEnd(prefix []byte) []byte {
	if len(prefix) == 0 {
		return []byte{0xFF}
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for {
		if end[len(end)-1] != 0xFF {
			end[len(end)-1]++
			break
		}
		end = end[:len(end)-1]
		if len(end) == 0 {
			return nil
		}
	}
	return end
}
