package store

import (
	"bytes"
	"slices"
	"strings"

	"github.com/millpond-labs/millpond/lib"
)

// enforce the StoreTxnI interface
var _ lib.StoreTxnI = &Txn{}

/*
	Txn acts like a database transaction: it saves set/del operations in memory and
	allows the caller to Write() them to the parent or Discard() them. When read from,
	it merges with the parent as if Write() had already been called.

	BadgerDB cannot nest transactions, so the Txn is what gives a pool operation its
	all-or-nothing behavior: the state machine wraps every mutating entry point in a
	Txn and only flushes it when the operation finishes without an error.

	CONTRACT:
	- only safe when writing to another memory store like a badger.Txn as Write() is not atomic
	- not thread safe
	- nil values are supported; deleted values are also set to nil
	- nested txns are supported, but iteration becomes increasingly inefficient
*/

type Txn struct {
	parent lib.RWStoreI  // store to Write() the operations to
	ops    map[string]op // [string(key)] -> set/del operations saved in memory
	sorted []string      // ops keys sorted lexicographically; needed for iteration
}

// op has the value portion of the operation and whether it is a delete or a set
type op struct {
	value  []byte
	delete bool
}

// NewTxn() creates a new instance of a Txn with the specified parent store
func NewTxn(parent lib.RWStoreI) *Txn {
	return &Txn{parent: parent, ops: make(map[string]op)}
}

// NewTxn() opens a nested overlay with this transaction as the parent
func (c *Txn) NewTxn() lib.StoreTxnI { return NewTxn(c) }

// Get() retrieves the value for a given key from either the in-memory operations or the parent store
func (c *Txn) Get(key []byte) ([]byte, lib.ErrorI) {
	if v, found := c.ops[string(key)]; found {
		return v.value, nil
	}
	return c.parent.Get(key)
}

// Set() adds or updates the value for a key in the in-memory operations
func (c *Txn) Set(key, value []byte) lib.ErrorI { c.update(string(key), value, false); return nil }

// Delete() marks a key for deletion in the in-memory operations
func (c *Txn) Delete(key []byte) lib.ErrorI { c.update(string(key), nil, true); return nil }

// update() records an operation for a key and keeps the key list sorted
func (c *Txn) update(key string, v []byte, del bool) {
	if _, found := c.ops[key]; !found {
		i, _ := slices.BinarySearch(c.sorted, key)
		c.sorted = slices.Insert(c.sorted, i, key)
	}
	c.ops[key] = op{value: v, delete: del}
}

// Iterator() returns a new iterator for merged iteration of both the in-memory operations and parent store with the given prefix
func (c *Txn) Iterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	parent, err := c.parent.Iterator(prefix)
	if err != nil {
		return nil, err
	}
	return newTxnIterator(parent, c, prefix, false), nil
}

// RevIterator() returns a new reverse iterator for merged iteration of both the in-memory operations and parent store with the given prefix
func (c *Txn) RevIterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	parent, err := c.parent.RevIterator(prefix)
	if err != nil {
		return nil, err
	}
	return newTxnIterator(parent, c, prefix, true), nil
}

// Discard() clears all in-memory operations and resets the sorted key list
func (c *Txn) Discard() { c.ops, c.sorted = nil, nil }

// Write() flushes the in-memory operations to the parent store and clears in-memory changes
func (c *Txn) Write() (err lib.ErrorI) {
	for k, v := range c.ops {
		if v.delete {
			if err = c.parent.Delete([]byte(k)); err != nil {
				return
			}
		} else {
			if err = c.parent.Set([]byte(k), v.value); err != nil {
				return
			}
		}
	}
	c.ops, c.sorted = make(map[string]op), nil
	return
}

// enforce the Iterator interface
var _ lib.IteratorI = &TxnIterator{}

// TxnIterator is a reversible, merged iterator of the parent and the in-memory operations
type TxnIterator struct {
	parent  lib.IteratorI
	ops     map[string]op
	sorted  []string
	prefix  string
	index   int
	reverse bool
	invalid bool
	useTxn  bool
}

// newTxnIterator() initializes a new merged iterator for traversing both the in-memory operations and parent store
func newTxnIterator(parent lib.IteratorI, t *Txn, prefix []byte, reverse bool) *TxnIterator {
	it := &TxnIterator{parent: parent, ops: t.ops, sorted: t.sorted, prefix: string(prefix), reverse: reverse}
	return it.first()
}

// first() positions the iterator at the first valid entry based on the traversal direction
func (c *TxnIterator) first() *TxnIterator {
	if c.reverse {
		// seek to the last in-memory key under the prefix
		end := string(prefixEnd([]byte(c.prefix)))
		i, _ := slices.BinarySearch(c.sorted, end)
		c.index = i - 1
		return c
	}
	// seek to the first in-memory key under the prefix
	i, _ := slices.BinarySearch(c.sorted, c.prefix)
	c.index = i
	return c
}

// Close() closes the merged iterator
func (c *TxnIterator) Close() { c.parent.Close() }

// Next() advances the iterator to the next entry, choosing between in-memory and parent store entries
func (c *TxnIterator) Next() {
	// if parent is not usable any more then txn.Next()
	// if txn is not usable any more then parent.Next()
	if !c.parent.Valid() {
		c.txnNext()
		return
	}
	if c.txnInvalid() {
		c.parent.Next()
		return
	}
	// compare the keys of the in memory option and the parent option
	switch c.compare(c.txnKey(), c.parent.Key()) {
	case 1: // use parent
		c.parent.Next()
	case 0: // use both
		c.parent.Next()
		c.txnNext()
	case -1: // use txn
		c.txnNext()
	}
}

// Key() returns the current key from either the in-memory operations or the parent store
func (c *TxnIterator) Key() []byte {
	if c.useTxn {
		return c.txnKey()
	}
	return c.parent.Key()
}

// Value() returns the current value from either the in-memory operations or the parent store
func (c *TxnIterator) Value() []byte {
	if c.useTxn {
		return c.txnValue().value
	}
	return c.parent.Value()
}

// Valid() checks if the current position of the iterator is valid, considering both the parent and in-memory entries
func (c *TxnIterator) Valid() bool {
	for {
		if !c.parent.Valid() {
			// only using the in-memory ops; advance until invalid or !deleted
			c.txnFastForward()
			c.useTxn = true
			break
		}
		if c.txnInvalid() {
			// parent is valid; txn is not
			c.useTxn = false
			break
		}
		// both are valid; key comparison matters
		cKey, pKey := c.txnKey(), c.parent.Key()
		switch c.compare(cKey, pKey) {
		case 1: // use parent
			c.useTxn = false
		case 0: // when equal txn shadows parent
			if c.txnValue().delete {
				c.parent.Next()
				c.txnNext()
				continue
			}
			c.useTxn = true
		case -1: // use txn
			if c.txnValue().delete {
				c.txnNext()
				continue
			}
			c.useTxn = true
		}
		break
	}
	return !c.txnInvalid() || c.parent.Valid()
}

// txnFastForward() skips over deleted entries in the in-memory operations
// return when invalid or !deleted
func (c *TxnIterator) txnFastForward() {
	for {
		if c.txnInvalid() || !c.txnValue().delete {
			return
		}
		c.txnNext()
	}
}

// txnInvalid() determines if the current in-memory entry is invalid
func (c *TxnIterator) txnInvalid() bool {
	if c.invalid {
		return c.invalid
	}
	c.invalid = true
	if c.reverse {
		if c.index < 0 {
			return c.invalid
		}
	} else {
		if c.index >= len(c.sorted) {
			return c.invalid
		}
	}
	if !strings.HasPrefix(c.sorted[c.index], c.prefix) {
		return c.invalid
	}
	c.invalid = false
	return c.invalid
}

// txnKey() returns the key of the current in-memory operation
func (c *TxnIterator) txnKey() []byte { return []byte(c.sorted[c.index]) }

// txnValue() returns the value of the current in-memory operation
func (c *TxnIterator) txnValue() op { return c.ops[c.sorted[c.index]] }

// compare() compares two byte slices, adjusting for reverse iteration if needed
func (c *TxnIterator) compare(a, b []byte) int {
	if c.reverse {
		return bytes.Compare(a, b) * -1
	}
	return bytes.Compare(a, b)
}

// txnNext() advances the index of the in-memory operations based on the iteration direction
func (c *TxnIterator) txnNext() {
	if c.reverse {
		c.index--
	} else {
		c.index++
	}
}
