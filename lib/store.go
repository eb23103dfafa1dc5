package lib

import (
	"github.com/dgraph-io/badger/v4"
)

/* This file contains persistence module interfaces that are used throughout the app */

// StoreI defines the interface for interacting with the engine storage
type StoreI interface {
	RWStoreI                              // reading and writing
	RWEventStoreI                         // reading and writing the event index
	NewTxn() StoreTxnI                    // wrap the store in a discardable nested store
	DB() *badger.DB                       // retrieve the underlying badger db
	Version() uint64                      // access the commit count of the store
	Copy() (StoreI, ErrorI)               // make a clone of the store with its own writer
	Commit() (version uint64, err ErrorI) // save the store atomically and increment the version
	Discard()                             // discard the underlying writer
	Reset()                               // discard and restart the underlying writer
	Close() ErrorI                        // gracefully stop the database
}

// StoreTxnI defines the interface for a discardable in-memory overlay over a store
type StoreTxnI interface {
	RWStoreI           // reading and writing
	NewTxn() StoreTxnI // open a nested overlay over this one
	Write() ErrorI     // flush the overlay operations to the parent store
	Discard()          // throw away the overlay operations
}

// RWStoreI defines the Read/Write interface for basic db CRUD operations
type RWStoreI interface {
	RStoreI
	WStoreI
}

// RWEventStoreI defines the Read/Write interface for the event index
type RWEventStoreI interface {
	WEventStoreI
	REventStoreI
}

// WEventStoreI defines the write interface for the event index
type WEventStoreI interface {
	IndexEvent(e *Event) ErrorI             // save an event under tick.index
	DeleteEventsForTick(tick uint32) ErrorI // remove all events recorded for a tick
}

// REventStoreI defines the read interface for the event index
type REventStoreI interface {
	GetEventsByTick(tick uint32, p PageParams) (*Page, ErrorI)      // get a page of events for a tick
	GetEvents(newestToOldest bool, p PageParams) (*Page, ErrorI)    // get a page of events across all ticks
}

// WStoreI defines an interface for basic write operations
type WStoreI interface {
	Set(key, value []byte) ErrorI // set value bytes referenced by key bytes
	Delete(key []byte) ErrorI
}

// RStoreI defines an interface for basic read operations
type RStoreI interface {
	Get(key []byte) ([]byte, ErrorI)               // access value bytes using key bytes
	Iterator(prefix []byte) (IteratorI, ErrorI)    // iterate through the data one KV pair at a time in lexicographical order
	RevIterator(prefix []byte) (IteratorI, ErrorI) // iterate through the data one KV pair at a time in reverse lexicographical order
}

// IteratorI defines an interface for iterating over key-value pairs in a data store
type IteratorI interface {
	Valid() bool           // if the item the iterator is pointing at is valid
	Next()                 // move to next item
	Key() (key []byte)     // retrieve key
	Value() (value []byte) // retrieve value
	Close()                // close the iterator when done, ensuring proper resource management
}
