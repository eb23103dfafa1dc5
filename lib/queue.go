package lib

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/millpond-labs/millpond/lib/crypto"
)

/* This file implements the in-memory queue of 'checked, pending to be applied' envelopes that the engine drains on each tick */

var _ EnvelopeQueue = &ArrivalQueue{} // EnvelopeQueue interface enforcement for ArrivalQueue implementation

// EnvelopeQueue interface is a model for a pre-tick, in-memory, envelope store
type EnvelopeQueue interface {
	Contains(hash string) bool                              // whether the queue already holds this envelope (de-duplicated by hash)
	AddEnvelope(envelope []byte) (recheck bool, err ErrorI) // append a new pending envelope in arrival order
	DeleteEnvelope(envelope []byte)                         // remove a pending envelope
	GetEnvelopes(maxBytes uint64) [][]byte                  // retrieve envelopes in arrival order up to a collective byte limit

	Clear()              // reset the entire queue
	Count() int          // number of envelopes in the queue
	QueueBytes() int     // collective number of bytes in the queue
	Iterator() IteratorI // loop through each envelope in the queue
}

// ArrivalQueue is an EnvelopeQueue implementation that preserves strict arrival order, because a
// sender's later envelopes depend on the sequence numbers consumed by its earlier ones
type ArrivalQueue struct {
	l          sync.RWMutex        // for thread safety
	hashMap    map[string]struct{} // O(1) de-duplication
	pool       *queuedEnvelopes    // the actual queue of envelopes
	count      int                 // the number of envelopes in the queue
	queueBytes int                 // collective number of bytes in the queue
	config     EngineConfig        // user configuration of the queue limits
}

// NewEnvelopeQueue() creates a new ArrivalQueue instance of an EnvelopeQueue
func NewEnvelopeQueue(config EngineConfig) EnvelopeQueue {
	// if the config drop percentage is unset
	if config.DropPercentage == 0 {
		// fall back to the default engine config
		config.DropPercentage = DefaultEngineConfig().DropPercentage
	}
	return &ArrivalQueue{
		hashMap: make(map[string]struct{}),
		pool:    newQueuedEnvelopes(),
		config:  config,
	}
}

// AddEnvelope() appends a new pending envelope to the queue and returns whether this addition
// dropped older limits-exceeding entries, which requires a recheck of the remaining queue
func (q *ArrivalQueue) AddEnvelope(envelope []byte) (recheck bool, err ErrorI) {
	// lock the queue for thread safety
	q.l.Lock()
	// when the function finishes unlock the queue
	defer q.l.Unlock()
	// ensure the size of the envelope doesn't exceed the individual limit
	envelopeBytes := len(envelope)
	if uint32(envelopeBytes) > q.config.IndividualMaxSize {
		return false, ErrMaxEnvelopeSize()
	}
	// create a quick hash of the envelope for de-duplication
	hash := crypto.HashString(envelope)
	// check for a duplicate
	if _, alreadyFound := q.hashMap[hash]; alreadyFound {
		return false, ErrEnvelopeFoundInQueue(hash)
	}
	// append the envelope to the back of the queue
	q.pool.insert(envelope)
	// insert into the de-duplication hash map
	q.hashMap[hash] = struct{}{}
	// increment the count
	q.count++
	// update the number of bytes
	q.queueBytes += envelopeBytes
	// assess if limits are exceeded; if so, drop the newest entries from the back since
	// evicting an early envelope would strand every later one from the same sender
	var dropped [][]byte
	for uint32(q.count) > q.config.MaxQueuedEnvelopes || uint64(q.queueBytes) > q.config.MaxTotalBytes {
		dropped = q.pool.drop(q.count, q.config.DropPercentage)
		// for each dropped envelope
		for _, d := range dropped {
			// decrement count
			q.count--
			// subtract the queue bytes
			q.queueBytes -= len(d)
			// delete from the de-duplication hash map
			delete(q.hashMap, crypto.HashString(d))
		}
	}
	// if any were dropped, the caller should recheck what remains
	return len(dropped) != 0, nil
}

// GetEnvelopes() returns pending envelopes in arrival order up to 'max collective envelope bytes'
func (q *ArrivalQueue) GetEnvelopes(maxBytes uint64) (envelopes [][]byte) {
	// lock for thread safety
	q.l.RLock()
	// unlock when the function completes
	defer q.l.RUnlock()
	// create a variable to track the collective byte count
	totalBytes := uint64(0)
	// for each envelope in the queue
	for e := q.pool.l.Front(); e != nil; e = e.Next() {
		// cast the item
		envelope := e.Value.([]byte)
		// add to the total bytes
		totalBytes += uint64(len(envelope))
		// stop at the first envelope that would exceed the limit; skipping
		// ahead would break arrival order
		if totalBytes > maxBytes {
			return
		}
		// add the envelope to the list
		envelopes = append(envelopes, envelope)
	}
	return
}

// Contains() checks if an envelope with the given hash exists in the queue
func (q *ArrivalQueue) Contains(hash string) (contains bool) {
	// lock for thread safety
	q.l.RLock()
	// unlock when the function completes
	defer q.l.RUnlock()
	// check if the hash map contains the envelope hash
	_, contains = q.hashMap[hash]
	return
}

// DeleteEnvelope() removes the specified envelope from the queue
func (q *ArrivalQueue) DeleteEnvelope(envelope []byte) {
	// lock for thread safety
	q.l.Lock()
	// unlock when the function completes
	defer q.l.Unlock()
	// delete the envelope from the queue
	deleted := q.pool.delete(envelope)
	// if the attempted delete missed
	if deleted == nil {
		return
	}
	// delete from the hash map
	delete(q.hashMap, crypto.HashString(deleted))
	// reduce the queue count
	q.count--
	// subtract from the bytes count
	q.queueBytes -= len(deleted)
}

// Clear() empties the queue and resets its state
func (q *ArrivalQueue) Clear() {
	// lock the queue for thread safety
	q.l.Lock()
	// unlock when the function completes
	defer q.l.Unlock()
	// reset the queue of envelopes
	q.pool = newQueuedEnvelopes()
	// reset the hash map
	q.hashMap = make(map[string]struct{})
	// reset the count
	q.count = 0
	// reset the bytes count
	q.queueBytes = 0
}

// Count() returns the current number of envelopes in the queue
func (q *ArrivalQueue) Count() int {
	// lock for thread safety
	q.l.RLock()
	// unlock when the function completes
	defer q.l.RUnlock()
	return q.count
}

// QueueBytes() returns the total size in bytes of all envelopes in the queue
func (q *ArrivalQueue) QueueBytes() int {
	// lock for thread safety
	q.l.RLock()
	// unlock when the function completes
	defer q.l.RUnlock()
	return q.queueBytes
}

// Iterator() creates a new iterator for traversing the envelopes in the queue
func (q *ArrivalQueue) Iterator() IteratorI {
	// lock for thread safety
	q.l.RLock()
	// unlock when the function completes
	defer q.l.RUnlock()
	return newQueueIterator(q.pool)
}

var _ IteratorI = &queueIterator{} // enforce

// queueIterator implements IteratorI over a snapshot of the queued envelopes
type queueIterator struct {
	pool    *queuedEnvelopes // copied queue of envelopes
	current *list.Element    // the current element
}

// newQueueIterator() initializes a new iterator over a copy of the queue for safe parallel iteration
func newQueueIterator(p *queuedEnvelopes) *queueIterator {
	pool := p.copy()
	return &queueIterator{pool: pool, current: pool.l.Front()}
}

// Valid() checks if the iterator is positioned on a valid element
func (q *queueIterator) Valid() bool { return q.current != nil }

// Next() advances the iterator to the next envelope in the queue
func (q *queueIterator) Next() { q.current = q.current.Next() }

// Key() returns the envelope at the current iterator position
func (q *queueIterator) Key() (key []byte) { return q.current.Value.([]byte) }

// Value() returns same as key
func (q *queueIterator) Value() (value []byte) { return q.Key() }

// Error() always returns nil, as no errors are tracked by this iterator
func (q *queueIterator) Error() error { return nil }

// Close() is a no-op in this iterator, as no resources need to be released
func (q *queueIterator) Close() {}

// queuedEnvelopes is an arrival ordered list of envelope bytes with a lookup index for O(1) deletion
type queuedEnvelopes struct {
	l *list.List               // doubly linked list in arrival order
	m map[string]*list.Element // envelope bytes -> list element
}

// newQueuedEnvelopes() initializes an empty arrival ordered list
func newQueuedEnvelopes() *queuedEnvelopes {
	return &queuedEnvelopes{l: list.New(), m: make(map[string]*list.Element)}
}

// insert() appends an envelope to the back of the list, preserving arrival order
func (t *queuedEnvelopes) insert(envelope []byte) {
	t.m[string(envelope)] = t.l.PushBack(envelope)
}

// delete() removes an envelope from the list
func (t *queuedEnvelopes) delete(envelope []byte) (deleted []byte) {
	// check if it exists
	elem, exists := t.m[string(envelope)]
	if !exists {
		return
	}
	// delete the element from the list
	t.l.Remove(elem)
	// remove from the map
	delete(t.m, string(envelope))
	return elem.Value.([]byte)
}

// drop() removes the newest X percent of envelopes from the back of the list
func (t *queuedEnvelopes) drop(count, percent int) (dropped [][]byte) {
	if count == 0 || percent <= 0 {
		return nil
	}
	// calculate the number to drop using integer division
	numDrop := (count*percent)/100 + 1
	// start at the back
	current := t.l.Back()
	// reverse iterate 'num to drop'
	for i := 0; i < numDrop && current != nil; i++ {
		// maintain a pointer to the next item (previous)
		prev := current.Prev()
		// cast the envelope
		envelope := current.Value.([]byte)
		// remove from the list
		t.l.Remove(current)
		// delete from the map
		delete(t.m, string(envelope))
		// save dropped
		dropped = append(dropped, envelope)
		// set previous to current
		current = prev
	}
	return
}

// copy() returns a shallow copy of the queuedEnvelopes
func (t *queuedEnvelopes) copy() *queuedEnvelopes {
	c := newQueuedEnvelopes()
	// iterate through all the items
	for e := t.l.Front(); e != nil; e = e.Next() {
		// cast it
		envelope := e.Value.([]byte)
		// push it to the new list
		c.m[string(envelope)] = c.l.PushBack(envelope)
	}
	return c
}

// FAILED ENVELOPE CACHE CODE BELOW

// FailedEnvelopeCache is a short lived cache of rejected envelopes used to report the failure back to the submitter
type FailedEnvelopeCache struct {
	cache map[string]*FailedEnvelope // map envelope hashes to failures
	l     sync.Mutex                 // a lock for thread safety
}

// NewFailedEnvelopeCache() returns a new FailedEnvelopeCache with its clean service running
func NewFailedEnvelopeCache() (cache *FailedEnvelopeCache) {
	// initialize the failed envelope cache
	cache = &FailedEnvelopeCache{cache: map[string]*FailedEnvelope{}}
	// start the cleaning service
	go cache.StartCleanService()
	return
}

// Add() records a rejected envelope and its error under the envelope hash
func (f *FailedEnvelopeCache) Add(hash, address string, envelope json.RawMessage, envErr error) {
	// lock for thread safety
	f.l.Lock()
	// unlock when the function completes
	defer f.l.Unlock()
	// add a new 'failed envelope' to the cache
	f.cache[hash] = &FailedEnvelope{
		Envelope:  envelope,
		Hash:      hash,
		Address:   address,
		Error:     envErr,
		timestamp: time.Now(),
	}
}

// Get() returns the failed envelope associated with its hash
func (f *FailedEnvelopeCache) Get(hash string) (failed *FailedEnvelope, found bool) {
	// lock for thread safety
	f.l.Lock()
	// unlock when the function completes
	defer f.l.Unlock()
	// get the failed envelope from the cache
	failed, found = f.cache[hash]
	return
}

// GetFailedForAddress() returns all the failed envelopes in the cache for a given address
func (f *FailedEnvelopeCache) GetFailedForAddress(address string) (failed []*FailedEnvelope) {
	// lock for thread safety
	f.l.Lock()
	// unlock when the function completes
	defer f.l.Unlock()
	// for each failed envelope in the cache
	for _, fe := range f.cache {
		// if the address matches
		if fe.Address == address {
			// add to the list
			failed = append(failed, fe)
		}
	}
	return
}

// Remove() removes envelope hashes from the cache
func (f *FailedEnvelopeCache) Remove(hashes ...string) {
	// lock for thread safety
	f.l.Lock()
	// unlock when the function completes
	defer f.l.Unlock()
	// for each envelope hash
	for _, hash := range hashes {
		// remove it from the memory cache
		delete(f.cache, hash)
	}
}

// StartCleanService() periodically removes failures from the cache that are older than 5 minutes
func (f *FailedEnvelopeCache) StartCleanService() {
	// every minute until the app stops
	for range time.Tick(time.Minute) {
		// wrap in a function to use 'defer'
		func() {
			// lock for thread safety
			f.l.Lock()
			// unlock when the iteration completes
			defer f.l.Unlock()
			// for each in the cache
			for hash, fe := range f.cache {
				// if the 'time since' is greater than 5 minutes
				if time.Since(fe.timestamp) >= 5*time.Minute {
					// remove it from the cache
					delete(f.cache, hash)
				}
			}
		}()
	}
}

// FailedEnvelope contains a rejected envelope and the error that rejected it
type FailedEnvelope struct {
	Envelope  json.RawMessage `json:"envelope,omitempty"` // the json form of the rejected envelope, when it could be parsed
	Hash      string          `json:"hash,omitempty"`     // the hash of the envelope bytes
	Address   string          `json:"address,omitempty"`  // the address that sent the envelope
	Error     error           `json:"error,omitempty"`    // the error that rejected it
	timestamp time.Time       // the time when the failure was recorded
}

// FailedEnvelopes is a list of failed envelopes
type FailedEnvelopes []*FailedEnvelope

// FailedEnvelopesPageName is the registered page name for a page of failures
const FailedEnvelopesPageName = "failed-envelopes"

// ensure FailedEnvelopes implements the pageable interface
var _ Pageable = &FailedEnvelopes{}

// New() implements the pageable interface
func (t *FailedEnvelopes) New() Pageable { return &FailedEnvelopes{} }

func init() {
	RegisteredPageables[FailedEnvelopesPageName] = new(FailedEnvelopes)
}
