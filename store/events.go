package store

import (
	"encoding/binary"

	"github.com/dgraph-io/badger/v4"
	"github.com/millpond-labs/millpond/lib"
)

// enforce the event store interface
var _ lib.RWEventStoreI = &EventIndexer{}

// eventTickPrefix is the key space for events ordered by (tick, index)
var eventTickPrefix = []byte{1}

// EventIndexer persists the lifecycle events a tick emitted, keyed by the tick and
// the order the events fired within it, so callers can page through pool activity
// without replaying state
type EventIndexer struct {
	db *TxnWrapper
}

// IndexEvent() saves an event under its (tick, index) key
func (t *EventIndexer) IndexEvent(e *lib.Event) lib.ErrorI {
	bz, err := lib.Marshal(e)
	if err != nil {
		return err
	}
	return t.db.Set(t.tickAndIndexKey(e.Tick, e.Index), bz)
}

// GetEventsByTick() returns a page of the events a single tick emitted, oldest first
func (t *EventIndexer) GetEventsByTick(tick uint32, p lib.PageParams) (*lib.Page, lib.ErrorI) {
	return t.getEventPage(t.tickKey(tick), false, p)
}

// GetEvents() returns a page of events across all ticks in the requested direction
func (t *EventIndexer) GetEvents(newestToOldest bool, p lib.PageParams) (*lib.Page, lib.ErrorI) {
	return t.getEventPage(eventTickPrefix, newestToOldest, p)
}

// DeleteEventsForTick() removes every event a tick emitted
func (t *EventIndexer) DeleteEventsForTick(tick uint32) lib.ErrorI {
	return t.deleteAll(t.tickKey(tick))
}

// getEventPage() loads a page of events under the prefix, unmarshalling each entry
func (t *EventIndexer) getEventPage(prefix []byte, reverse bool, p lib.PageParams) (page *lib.Page, err lib.ErrorI) {
	page, results := lib.NewPage(p, lib.EventsPageName), new(lib.Events)
	err = page.Load(prefix, reverse, results, t.db, func(_, value []byte) (e lib.ErrorI) {
		event := new(lib.Event)
		if e = lib.Unmarshal(value, event); e != nil {
			return
		}
		*results = append(*results, event)
		return
	})
	return
}

// deleteAll() collects the keys under a prefix then deletes them outside the iterator
func (t *EventIndexer) deleteAll(prefix []byte) lib.ErrorI {
	it, err := t.db.Iterator(prefix)
	if err != nil {
		return err
	}
	var keysToDelete [][]byte
	for ; it.Valid(); it.Next() {
		keysToDelete = append(keysToDelete, it.Key())
	}
	it.Close()
	for _, key := range keysToDelete {
		if err = t.db.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// setDB() points the indexer at a fresh writer after a commit or reset
func (t *EventIndexer) setDB(txn *badger.Txn) { t.db.setDB(txn) }

// tickAndIndexKey() builds the full key for one event of a tick
func (t *EventIndexer) tickAndIndexKey(tick uint32, index uint64) []byte {
	return append(t.tickKey(tick), encodeBigEndian(index)...)
}

// tickKey() builds the key prefix shared by all events of a tick
func (t *EventIndexer) tickKey(tick uint32) []byte {
	return append(eventTickPrefix, encodeTick(tick)...)
}

// encodeTick() encodes the tick as 4 big endian bytes so keys sort by tick order
func encodeTick(tick uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, tick)
	return b
}

// encodeBigEndian() encodes a uint64 as 8 big endian bytes so keys sort numerically
func encodeBigEndian(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}
