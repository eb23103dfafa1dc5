package app

import (
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

/* This file implements the queue wrapper that keeps pending envelopes valid against an ephemeral state copy */

// Queue accepts or rejects incoming envelopes based on the queue (ephemeral copy) state
// - recheck when
//   - the queue dropped entries over its limits, as later envelopes may depend on dropped ones
//
// - notes:
//   - a newly added envelope may also be evicted by the recheck, this is expected behavior
type Queue struct {
	lib.EnvelopeQueue                          // the arrival ordered queue itself defined as an interface
	FSM               *fsm.StateMachine        // the ephemeral state machine used to validate inbound envelopes
	cachedPending     PendingEnvelopes         // a memory cache of checked envelopes for efficient display
	failed            *lib.FailedEnvelopeCache // a memory cache of rejected envelopes for tracking
	metrics           *lib.Metrics             // telemetry
	log               lib.LoggerI              // the logger
}

// NewQueue() creates a new instance of a Queue structure
func NewQueue(sm *fsm.StateMachine, config lib.Config, metrics *lib.Metrics, log lib.LoggerI) (q *Queue, err lib.ErrorI) {
	// initialize the structure
	q = &Queue{
		EnvelopeQueue: lib.NewEnvelopeQueue(config.EngineConfig),
		failed:        lib.NewFailedEnvelopeCache(),
		metrics:       metrics,
		log:           log,
	}
	// make a 'queue (ephemeral copy) state' so the queue can maintain only 'valid' envelopes despite dependencies and conflicts
	q.FSM, err = sm.Copy()
	// if an error occurred copying the state machine
	if err != nil {
		return nil, err
	}
	// exit
	return q, nil
}

// HandleEnvelope() attempts to add an envelope to the queue by validating, adding, and evicting overfull or newly invalid entries
func (q *Queue) HandleEnvelope(envelope []byte) (err lib.ErrorI) {
	// upon completing this function
	defer func() {
		// if an error occurred while handling this envelope
		if err != nil {
			// cache the failure for RPC display
			q.cacheFailed(envelope, err)
		}
	}()
	// validate the envelope against the queue (ephemeral copy) state
	pending, err := q.applyToEphemeral(envelope)
	// if an error occurred while applying this envelope against the ephemeral copy
	if err != nil {
		// exit with the error
		return
	}
	// add the envelope to the queue
	recheck, err := q.AddEnvelope(envelope)
	// if an error occurred adding the envelope to the queue
	if err != nil {
		// exit with the error
		return
	}
	// log the addition
	q.log.Infof("Added envelope %s to the queue for checking", pending.Hash)
	// add the checked envelope to the cache
	q.cachedPending = append(q.cachedPending, pending)
	// recheck the queue if necessary
	if recheck {
		// recheck the queue
		q.CheckQueue()
	}
	// exit
	return
}

// CheckQueue() validates all envelopes in the queue against the queue (ephemeral copy) state and evicts any that are invalid
func (q *Queue) CheckQueue() {
	// rewind the queue (ephemeral copy) state to the last committed version
	q.FSM.Reset()
	// reset the RPC cached pending list
	q.cachedPending = nil
	// create a list of the envelopes to delete
	var toDelete [][]byte
	// create an iterator for the queue
	it := q.Iterator()
	// at the end of the function, close the iterator
	defer it.Close()
	// for each queued envelope
	for ; it.Valid(); it.Next() {
		// get the envelope itself from the iterator
		envelope := it.Key()
		// replay the envelope against the ephemeral state machine
		pending, err := q.applyToEphemeral(envelope)
		// if an error occurred during the application
		if err != nil {
			// log the error
			q.log.Error(err.Error())
			// add to the remove list
			toDelete = append(toDelete, envelope)
			// and cache the failure
			q.cacheFailed(envelope, err)
			// continue with the next iteration
			continue
		}
		// cache the checked envelope
		q.cachedPending = append(q.cachedPending, pending)
	}
	// evict all 'newly' invalid envelopes from the queue
	for _, envelope := range toDelete {
		// log the eviction
		q.log.Infof("Removed envelope %s from the queue", crypto.HashString(envelope))
		// delete the envelope
		q.DeleteEnvelope(envelope)
	}
	// update the queue telemetry
	q.metrics.UpdateQueueMetrics(q.Count(), q.QueueBytes())
}

// applyToEphemeral() checks the validity of an envelope by playing it against the queue (ephemeral copy) state machine
func (q *Queue) applyToEphemeral(envelope []byte) (pending *PendingEnvelope, err lib.ErrorI) {
	// get the ephemeral store from the queue state machine
	store := q.FSM.Store()
	// wrap the store in a 'database transaction' in case a rollback to the previous valid envelope is needed
	txn, err := q.FSM.TxnWrap()
	// if an error occurred during the wrapping
	if err != nil {
		// exit with error
		return
	}
	// at the end of this code, set the state machine store back to the 'ephemeral store' and discard the 'database transaction'
	defer func() { q.FSM.SetStore(store); txn.Discard() }()
	// statelessly verify the envelope to extract its hash and sender
	result, err := q.FSM.CheckEnvelope(envelope)
	// if an error occurred during the check
	if err != nil {
		// exit with error
		return
	}
	// apply the envelope to the queue (ephemeral copy) state machine
	if err = q.FSM.ApplyEnvelope(envelope); err != nil {
		// exit with error
		return
	}
	// write the changes to the ephemeral store
	if err = txn.Write(); err != nil {
		// exit with error
		return
	}
	// exit with the checked envelope
	return &PendingEnvelope{
		Hash:     result.Hash(),
		Address:  result.Sender().String(),
		Envelope: result.Envelope(),
	}, nil
}

// cacheFailed() records a rejected envelope in the failure cache, keyed by hash and sender when recoverable
func (q *Queue) cacheFailed(envelope []byte, envErr lib.ErrorI) {
	// parse the envelope to recover the sender for address based lookups
	e := new(fsm.Envelope)
	// if the envelope bytes don't parse, skip the cache silently as there's no way to report it back
	if err := e.UnmarshalBinary(envelope); err != nil {
		return
	}
	// extract the sender's public key from the envelope
	publicKey, err := crypto.NewPublicKeyFromBytes(e.PublicKey)
	// if the public key is invalid
	if err != nil {
		// exit without caching
		return
	}
	// convert the envelope to json for display
	jsonBytes, err := lib.MarshalJSON(e)
	// if the conversion failed
	if err != nil {
		// exit without caching
		return
	}
	// add the failure to the cache
	q.failed.Add(crypto.HashString(envelope), publicKey.Address().String(), jsonBytes, envErr)
}

// PendingEnvelope is a checked envelope waiting in the queue, paired with its hash and sender
type PendingEnvelope struct {
	Hash     string        `json:"hash"`     // the hex encoded hash of the envelope bytes
	Address  string        `json:"address"`  // the hex encoded address of the sender
	Envelope *fsm.Envelope `json:"envelope"` // the parsed envelope itself
}

// PendingEnvelopes is a list of checked envelopes waiting in the queue
type PendingEnvelopes []*PendingEnvelope

// PendingEnvelopesPageName is the registered page name for a page of pending envelopes
const PendingEnvelopesPageName = "pending-envelopes"

// ensure PendingEnvelopes implements the pageable interface
var _ lib.Pageable = &PendingEnvelopes{}

// New() implements the pageable interface
func (p *PendingEnvelopes) New() lib.Pageable { return &PendingEnvelopes{} }

func init() {
	lib.RegisteredPageables[PendingEnvelopesPageName] = new(PendingEnvelopes)
}
