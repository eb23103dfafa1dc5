package app

import (
	"sync"
	"time"

	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

/* This file implements the engine that drains the queue into the state machine on each tick of the clock */

// App acts as the 'manager' of the modules of the application
type App struct {
	FSM     *fsm.StateMachine // the canonical state machine at the last committed version
	Queue   *Queue            // the arrival queue of checked, pending envelopes
	Config  lib.Config        // the user configuration
	metrics *lib.Metrics      // telemetry
	log     lib.LoggerI       // the logger
	stop    chan struct{}     // closed to ask the tick loop to exit
	done    chan struct{}     // closed once the tick loop has exited
	sync.Mutex
}

// New() creates a new instance of an App, this is the entry point when initializing an instance of a millpond node
func New(config lib.Config, db lib.StoreI, metrics *lib.Metrics, log lib.LoggerI) (a *App, err lib.ErrorI) {
	// initialize the state machine at the store's latest version
	sm, err := fsm.New(config, db, metrics, log)
	// if an error occurred initializing the state machine
	if err != nil {
		return nil, err
	}
	// initialize the structure
	a = &App{
		FSM:     sm,
		Config:  config,
		metrics: metrics,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		Mutex:   sync.Mutex{},
	}
	// initialize the arrival queue with its own ephemeral copy of the state
	a.Queue, err = NewQueue(sm, config, metrics, log)
	// if an error occurred initializing the queue
	if err != nil {
		return nil, err
	}
	// exit
	return a, nil
}

// Start() begins the App service
func (a *App) Start() {
	// start the telemetry server
	a.metrics.Start()
	// advance the tick clock on the configured period
	go a.tickLoop()
}

// Stop() terminates the App service
func (a *App) Stop() {
	// ask the tick loop to exit
	close(a.stop)
	// wait for any in-flight tick to finish
	<-a.done
	// lock for thread safety
	a.Lock()
	defer a.Unlock()
	// gracefully stop the database
	if err := a.FSM.Store().(lib.StoreI).Close(); err != nil {
		a.log.Error(err.Error())
	}
	// stop the telemetry server
	a.metrics.Stop()
}

// tickLoop() commits a new version of the state each tick period until stopped
func (a *App) tickLoop() {
	// signal the exit of the loop once this function finishes
	defer close(a.done)
	// create the tick clock
	ticker := time.NewTicker(time.Duration(a.Config.TickIntervalMS) * time.Millisecond)
	// stop the clock when the loop exits
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			// exit the loop
			return
		case <-ticker.C:
			// drain the queue and commit the next version; an empty tick still commits
			// so the price accumulators observe real elapsed time
			if err := a.CommitTick(); err != nil {
				a.log.Errorf("Tick commit failed with err: %s", err.Error())
			}
		}
	}
}

// CommitTick() applies the queued envelopes against the state machine and atomically commits the next version
func (a *App) CommitTick() lib.ErrorI {
	// lock for thread safety
	a.Lock()
	defer a.Unlock()
	// reset the store writer once this code finishes
	// NOTE: if code execution gets to `store.Commit()` - this will effectively be a noop
	defer func() { a.FSM.Reset() }()
	// gather the envelopes for this tick in arrival order up to the collective byte limit
	envelopes := a.Queue.GetEnvelopes(a.Config.MaxTotalBytes)
	// the index of the next event within this tick
	eventCount := uint64(0)
	// for each envelope
	for _, envelope := range envelopes {
		// track the application start time for telemetry
		start := time.Now()
		// apply the envelope against the state machine
		if err := a.FSM.ApplyEnvelope(envelope); err != nil {
			// log the rejection
			a.log.Warnf("Envelope %s failed with err: %s", crypto.HashString(envelope), err.Error())
			// cache the failure for RPC display
			a.Queue.cacheFailed(envelope, err)
			// evict the envelope from the queue
			a.Queue.DeleteEnvelope(envelope)
			// continue with the next envelope
			continue
		}
		// stamp and index the events this envelope emitted
		n, err := a.FSM.FlushEvents(eventCount)
		// if an error occurred indexing the events
		if err != nil {
			return err
		}
		// move the running event index forward
		eventCount += n
		// update the envelope telemetry
		a.metrics.UpdateEnvelopeMetrics(time.Since(start))
		// the envelope was applied so remove it from the queue
		a.Queue.DeleteEnvelope(envelope)
		// when configured for testing, persist a version per envelope
		if a.Config.CommitEveryEnvelope {
			if err = a.commit(); err != nil {
				return err
			}
			// event indices restart with the new tick
			eventCount = 0
		}
	}
	// persist the tick version unless the per-envelope mode already did
	if !a.Config.CommitEveryEnvelope || len(envelopes) == 0 {
		if err := a.commit(); err != nil {
			return err
		}
	}
	// set up the queue for the next tick
	var err lib.ErrorI
	if a.Queue.FSM, err = a.FSM.Copy(); err != nil {
		return err
	}
	// rescan the queue to ensure validity of the remaining envelopes
	a.log.Debug("Checking the queue for newly invalid envelopes")
	a.Queue.CheckQueue()
	// exit
	return nil
}

// commit() atomically writes the pending state as the next version and rebuilds the state machine for the following tick
func (a *App) commit() lib.ErrorI {
	// load the store (db) object
	storeI := a.FSM.Store().(lib.StoreI)
	// atomically write this version to the store
	version, err := storeI.Commit()
	// if an error occurred during the commit
	if err != nil {
		return err
	}
	// log the new version
	a.log.Infof("Committed version %d 🔒", version)
	// set up the state machine for the next tick
	a.FSM, err = fsm.New(a.Config, storeI, a.metrics, a.log)
	// if an error occurred rebuilding the state machine
	if err != nil {
		return err
	}
	// update the liveness and tick telemetry
	a.metrics.UpdateNodeMetrics(a.FSM.Tick())
	// exit
	return nil
}

// HandleEnvelope() accepts or rejects an inbound envelope based on the queue state
// - pass through call checking the queue for a duplicate before routing to the queue handler
func (a *App) HandleEnvelope(envelope []byte) lib.ErrorI {
	// lock for thread safety
	a.Lock()
	defer a.Unlock()
	// generate a hex encoded hash string for the envelope
	hashString := crypto.HashString(envelope)
	// ensure the queue doesn't already contain the envelope
	if a.Queue.Contains(hashString) {
		// if it does, exit with already found in the queue
		return lib.ErrEnvelopeFoundInQueue(hashString)
	}
	// route the envelope to the queue for handling
	return a.Queue.HandleEnvelope(envelope)
}

// ReadOnlyFSM() returns an independent state machine view over the last committed version
// the caller owns the view and must Discard() it when finished
func (a *App) ReadOnlyFSM() (*fsm.StateMachine, lib.ErrorI) {
	// lock for thread safety
	a.Lock()
	defer a.Unlock()
	// copy the canonical state machine
	return a.FSM.Copy()
}

// PendingState() exports the queue's ephemeral state, which has every queued envelope applied
// this previews what the state will look like once the next tick commits
func (a *App) PendingState() (*fsm.GenesisState, lib.ErrorI) {
	// lock for thread safety
	a.Lock()
	defer a.Unlock()
	// export directly from the queue state machine as its pending writes live in its writer
	return a.Queue.FSM.ExportState()
}

// NextSequence() returns the sequence the named sender should use for its next envelope
// the queue state is consulted so envelopes already waiting for the next tick are counted
func (a *App) NextSequence(address []byte) (uint64, lib.ErrorI) {
	// lock for thread safety
	a.Lock()
	defer a.Unlock()
	// read the sequence from the queue state machine
	sequence, err := a.Queue.FSM.GetAccountSequence(address)
	if err != nil {
		return 0, err
	}
	return sequence + 1, nil
}

// GetPendingPage() returns a page of checked envelopes waiting in the queue
func (a *App) GetPendingPage(p lib.PageParams) (page *lib.Page, err lib.ErrorI) {
	// lock for thread safety
	a.Lock()
	// unlock when the function completes
	defer a.Unlock()
	// create a new page and pending envelope list to populate
	page, pending := lib.NewPage(p, PendingEnvelopesPageName), make(PendingEnvelopes, 0)
	// define a callback to execute when loading the page
	callback := func(item any) (e lib.ErrorI) {
		// cast the item to a pending envelope
		v, ok := item.(*PendingEnvelope)
		// if the cast failed
		if !ok {
			// exit with error
			return lib.ErrInvalidArgument()
		}
		// add to the list
		pending = append(pending, v)
		// exit callback
		return
	}
	// populate the page using the 'cached pending'
	err = page.LoadArray(a.Queue.cachedPending, &pending, callback)
	// exit
	return
}

// GetFailedPage() returns a page of recently rejected envelopes for an address
func (a *App) GetFailedPage(address string, p lib.PageParams) (page *lib.Page, err lib.ErrorI) {
	// lock for thread safety
	a.Lock()
	// unlock when the function completes
	defer a.Unlock()
	// create a new page and failed envelope list to populate
	page, failed := lib.NewPage(p, lib.FailedEnvelopesPageName), make(lib.FailedEnvelopes, 0)
	// define a callback to execute when loading the page
	callback := func(item any) (e lib.ErrorI) {
		// cast the item to a 'failed envelope' object
		v, ok := item.(*lib.FailedEnvelope)
		// if the cast failed
		if !ok {
			// exit with error
			return lib.ErrInvalidArgument()
		}
		// add to the failed list
		failed = append(failed, v)
		// exit callback
		return
	}
	// populate the page using the 'failed cache'
	err = page.LoadArray(a.Queue.failed.GetFailedForAddress(address), &failed, callback)
	// exit
	return
}
