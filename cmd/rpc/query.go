package rpc

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/pprof"
	"slices"

	"github.com/julienschmidt/httprouter"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/nsf/jsondiff"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// defaultPriceLookback is how many ticks of reserve history the price endpoint folds in
// when the request leaves the lookback unset
const defaultPriceLookback = 256

// Version returns the software version of the node
func (s *Server) Version(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, SoftwareVersion, http.StatusOK)
}

// Envelope accepts a signed envelope and hands it to the node for queueing
func (s *Server) Envelope(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Unmarshal the envelope from the request body
	req := new(fsm.Envelope)
	if ok := unmarshal(w, r, req); !ok {
		return
	}
	// Submit the envelope to the node
	s.submitEnvelope(w, req)
}

// Tick returns the tick the node is currently working on
func (s *Server) Tick(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.readOnlyState(w, func(state *fsm.StateMachine) lib.ErrorI {
		write(w, &tickResponse{Tick: state.Tick()}, http.StatusOK)
		return nil
	})
}

// Account returns the account balance under an address for a single asset
func (s *Server) Account(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(accountRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetAccount(req.Address, req.Asset)
	})
}

// Sequence returns the last executed envelope sequence for an address, any
// externally signed envelope must carry a higher one
func (s *Server) Sequence(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(addressRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		sequence, err := state.GetAccountSequence(req.Address)
		if err != nil {
			return nil, err
		}
		return &sequenceResponse{Sequence: sequence}, nil
	})
}

// Accounts returns a page of all account balances
func (s *Server) Accounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetAccountsPaginated(req.PageParams)
	})
}

// Pool returns a pool by its deterministic address
func (s *Server) Pool(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(poolRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetPool(req.PoolAddress)
	})
}

// PoolByAssets returns the pool holding the given asset pair, in either order
func (s *Server) PoolByAssets(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(assetPairRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetPoolByAssets(req.AssetA, req.AssetB)
	})
}

// Pools returns a page of all pools
func (s *Server) Pools(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetPoolsPaginated(req.PageParams)
	})
}

// Claim returns the claim balance an owner holds against a pool
func (s *Server) Claim(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(claimRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetClaim(req.PoolAddress, req.Address)
	})
}

// Claims returns a page of claim balances against a single pool
func (s *Server) Claims(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedPoolRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		return state.GetClaimsByPoolPaginated(req.PoolAddress, req.PageParams)
	})
}

// Supply returns the total claim supply of a pool
func (s *Server) Supply(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(poolRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		supply, err := state.ClaimSupply(req.PoolAddress)
		if err != nil {
			return nil, err
		}
		return &supplyResponse{PoolAddress: req.PoolAddress, Supply: supply}, nil
	})
}

// Quote prices a hypothetical swap against the live reserves without executing it
func (s *Server) Quote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(quoteRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		// Load the pool being quoted against
		pool, err := state.GetPool(req.PoolAddress)
		if err != nil {
			return nil, err
		}
		// Reject empty input up front
		if req.InputAmount == nil || req.InputAmount.IsZero() {
			return nil, fsm.ErrInsufficientInput()
		}
		// Orient the reserves around the input asset
		reserveIn, reserveOut, outputAsset := pool.ReserveA, pool.ReserveB, pool.AssetB
		switch req.InputAsset {
		case pool.AssetA:
		case pool.AssetB:
			reserveIn, reserveOut, outputAsset = pool.ReserveB, pool.ReserveA, pool.AssetA
		default:
			return nil, fsm.ErrUnknownAsset(req.InputAsset)
		}
		// Apply the fee adjusted constant product formula
		return &quoteResponse{
			PoolAddress:  pool.Address,
			InputAsset:   req.InputAsset,
			OutputAsset:  outputAsset,
			InputAmount:  req.InputAmount,
			OutputAmount: fsm.AmountOut(req.InputAmount, reserveIn, reserveOut),
		}, nil
	})
}

// Price returns spot and time weighted price statistics for a pool
func (s *Server) Price(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(priceRequest)
	s.stateParams(w, r, req, func(state *fsm.StateMachine) (any, lib.ErrorI) {
		pool, err := state.GetPool(req.PoolAddress)
		if err != nil {
			return nil, err
		}
		st, ok := state.Store().(lib.StoreI)
		if !ok {
			return nil, fsm.ErrWrongStoreType()
		}
		return priceStats(st, pool, state.Tick(), req.LookbackTicks)
	})
}

// Params returns the governance controlled parameters
func (s *Server) Params(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.readOnlyState(w, func(state *fsm.StateMachine) lib.ErrorI {
		p, err := state.GetParams()
		if err != nil {
			return err
		}
		write(w, p, http.StatusOK)
		return nil
	})
}

// State exports the entire committed state as a genesis document
func (s *Server) State(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.readOnlyState(w, func(state *fsm.StateMachine) lib.ErrorI {
		genesis, err := state.ExportState()
		if err != nil {
			return err
		}
		write(w, genesis, http.StatusOK)
		return nil
	})
}

// StateDiff renders the difference between the committed state and the pending
// state the queued envelopes would produce
func (s *Server) StateDiff(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Export the committed state
	state, err := s.app.ReadOnlyFSM()
	if err != nil {
		write(w, ErrNewFSM(err), http.StatusInternalServerError)
		return
	}
	defer state.Discard()
	committedGenesis, err := state.ExportState()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	// Export the pending state with every queued envelope applied
	pendingGenesis, err := s.app.PendingState()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	j1, _ := json.Marshal(committedGenesis)
	j2, _ := json.Marshal(pendingGenesis)
	// Browsers hit this route with GET and get an HTML render; POST gets console text
	opts := jsondiff.DefaultConsoleOptions()
	if r.Method == http.MethodGet {
		opts = jsondiff.DefaultHTMLOptions()
	}
	opts.ChangedSeparator = " <- "
	_, differ := jsondiff.Compare(j1, j2, &opts)
	if r.Method == http.MethodGet {
		w.Header().Set(ContentType, "text/html; charset=utf-8")
		differ = "<pre>" + differ + "</pre>"
	}
	if _, er := w.Write([]byte(differ)); er != nil {
		s.logger.Error(er.Error())
	}
}

// EventsByTick returns a page of the events a single tick emitted
func (s *Server) EventsByTick(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedTickRequest)
	if ok := unmarshal(w, r, req); !ok {
		return
	}
	s.readOnlyState(w, func(state *fsm.StateMachine) lib.ErrorI {
		st, ok := state.Store().(lib.StoreI)
		if !ok {
			return fsm.ErrWrongStoreType()
		}
		// Default to the last committed tick
		tick := req.Tick
		if tick == 0 && state.Tick() != 0 {
			tick = state.Tick() - 1
		}
		page, err := st.GetEventsByTick(tick, req.PageParams)
		if err != nil {
			return err
		}
		write(w, page, http.StatusOK)
		return nil
	})
}

// Events returns a page of events across all ticks, newest first
func (s *Server) Events(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedRequest)
	if ok := unmarshal(w, r, req); !ok {
		return
	}
	s.readOnlyState(w, func(state *fsm.StateMachine) lib.ErrorI {
		st, ok := state.Store().(lib.StoreI)
		if !ok {
			return fsm.ErrWrongStoreType()
		}
		page, err := st.GetEvents(true, req.PageParams)
		if err != nil {
			return err
		}
		write(w, page, http.StatusOK)
		return nil
	})
}

// Pending returns a page of envelopes queued for the next tick
func (s *Server) Pending(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedRequest)
	if ok := unmarshal(w, r, req); !ok {
		return
	}
	page, err := s.app.GetPendingPage(req.PageParams)
	if err != nil {
		write(w, err, http.StatusBadRequest)
		return
	}
	write(w, page, http.StatusOK)
}

// FailedEnvelopes returns a page of recently failed envelopes for a sender address
func (s *Server) FailedEnvelopes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(paginatedAddressRequest)
	if ok := unmarshal(w, r, req); !ok {
		return
	}
	if req.Address == nil {
		write(w, lib.ErrInvalidAddress(), http.StatusBadRequest)
		return
	}
	page, err := s.app.GetFailedPage(req.Address.String(), req.PageParams)
	if err != nil {
		write(w, err, http.StatusBadRequest)
		return
	}
	write(w, page, http.StatusOK)
}

// priceStats folds a pool's indexed reserve commits into spot and time weighted statistics
// prices quote asset B per unit of asset A, weighted by how many ticks each commit held
func priceStats(st lib.StoreI, pool *fsm.Pool, currentTick, lookback uint32) (*priceResponse, lib.ErrorI) {
	if lookback == 0 {
		lookback = defaultPriceLookback
	}
	startTick := uint32(0)
	if currentTick > lookback {
		startTick = currentTick - lookback
	}
	// Collect the price series newest to oldest from the event index
	var ticks []uint32
	var prices []float64
	for pageNumber, done := 1, false; !done; pageNumber++ {
		page, err := st.GetEvents(true, lib.PageParams{PageNumber: pageNumber, PerPage: 1000})
		if err != nil {
			return nil, err
		}
		events, castOk := page.Results.(*lib.Events)
		if !castOk {
			return nil, lib.ErrInvalidArgument()
		}
		for _, e := range *events {
			// The index pages newest first, so passing the window start means the rest is older
			if e.Tick < startTick {
				done = true
				break
			}
			if e.EventType != lib.EventTypeReserveSync || !bytes.Equal(e.PoolAddress, pool.Address) {
				continue
			}
			if e.AmountA == nil || e.AmountA.IsZero() || e.AmountB == nil {
				continue
			}
			ticks = append(ticks, e.Tick)
			prices = append(prices, e.AmountB.Float64()/e.AmountA.Float64())
		}
		if page.Count < page.PerPage {
			done = true
		}
	}
	response := &priceResponse{PoolAddress: pool.Address, Samples: len(prices)}
	// Live reserves give the spot quote
	if !pool.ReserveA.IsZero() {
		response.Spot = pool.ReserveB.Float64() / pool.ReserveA.Float64()
	}
	if len(prices) == 0 {
		response.TWAP, response.Min, response.Max = response.Spot, response.Spot, response.Spot
		return response, nil
	}
	// Reverse into tick ascending order
	slices.Reverse(ticks)
	slices.Reverse(prices)
	// Each commit's price holds until the next commit; the newest holds until the current tick
	weights := make([]float64, len(prices))
	for i := range prices {
		next := currentTick
		if i+1 < len(prices) {
			next = ticks[i+1]
		}
		weights[i] = float64(next - ticks[i])
	}
	response.FirstTick, response.LastTick = ticks[0], ticks[len(ticks)-1]
	response.TWAP = stat.Mean(prices, weights)
	if sd := stat.StdDev(prices, weights); !math.IsNaN(sd) {
		response.StdDev = sd
	}
	response.Min, response.Max = floats.Min(prices), floats.Max(prices)
	return response, nil
}

// debugHandler is the http handler for the profiling endpoints
func debugHandler(routeName string) httprouter.Handle {
	var f http.HandlerFunc
	switch routeName {
	case DebugHeapRouteName, DebugGoroutineRouteName, DebugBlockedRouteName:
		f = func(w http.ResponseWriter, r *http.Request) {
			pprof.Handler(routeName).ServeHTTP(w, r)
		}
	case DebugCPURouteName:
		f = pprof.Profile
	default:
		f = func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}
	}
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		f(w, r)
	}
}
