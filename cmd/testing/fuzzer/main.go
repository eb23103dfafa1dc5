package main

import (
	"math/rand"
	"sync"
	"time"

	"github.com/millpond-labs/millpond/cmd/rpc"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

const (
	configFileName = "fuzzer.json"

	AssetA = uint64(1)
	AssetB = uint64(2)

	TransferMsgName = "transfer"
	DepositMsgName  = "deposit"
	SwapMsgName     = "swap"
	WithdrawMsgName = "withdraw"

	BadSigReason     = "bad signature"
	BadSeqReason     = "bad sequence"
	BadMessageReason = "bad msg"
	BadRecReason     = "bad receiver"
	BadAmountReason  = "bad amount"
	BadPoolReason    = "bad pool"
	BadOutputReason  = "bad output"
)

func main() {
	fuzzer := NewFuzzer()
	fuzzer.EnsurePool()
	go fuzzer.watchPoolLoop()
	for range time.Tick(100 * time.Millisecond) {
		var err lib.ErrorI
		switch rand.Intn(10) {
		case 0, 1, 2:
			err = fuzzer.TransferEnvelope()
		case 3, 4:
			err = fuzzer.DepositEnvelope()
		case 5, 6, 7:
			err = fuzzer.SwapEnvelope()
		case 8:
			err = fuzzer.WithdrawEnvelope()
		case 9:
			err = fuzzer.MaintenanceEnvelope()
		}
		if err != nil {
			fuzzer.log.Error(err.Error())
		}
	}
}

type Fuzzer struct {
	log         lib.LoggerI
	config      *Config
	client      *rpc.Client
	state       *DependentState
	poolAddress lib.HexBytes
}

func NewFuzzer() *Fuzzer {
	log := lib.NewDefaultLogger()
	config := new(Config).FromFile(log)
	return &Fuzzer{
		log:    log,
		config: config,
		client: rpc.NewClient(config.RPCUrl, config.AdminRPCUrl),
		state: &DependentState{
			RWMutex:   sync.RWMutex{},
			tick:      0,
			accounts:  make(map[string]*fsm.Account),
			sequences: make(map[string]uint64),
		},
		poolAddress: fsm.PoolAddress(AssetA, AssetB),
	}
}

// EnsurePool creates and seeds the target pool when the node doesn't have it yet.
// The seed deposit comes from the first configured key, which the devnet genesis funds
func (f *Fuzzer) EnsurePool() {
	if _, err := f.client.TickWithRetry(10); err != nil {
		f.log.Fatal(err.Error())
	}
	if _, err := f.client.Pool(f.poolAddress.String()); err == nil {
		return
	}
	from := crypto.NewKeyGroup(&f.config.PrivateKeys[0])
	f.log.Infof("Creating pool %s for pair %d/%d", f.poolAddress.String(), AssetA, AssetB)
	if err := f.submit(from, &fsm.MessageCreatePool{AssetA: AssetA, AssetB: AssetB}); err != nil {
		f.log.Fatal(err.Error())
	}
	if err := f.submit(from, &fsm.MessageDeposit{
		PoolAddress: f.poolAddress,
		AmountA:     lib.NewAmount(100_000),
		AmountB:     lib.NewAmount(100_000),
	}); err != nil {
		f.log.Fatal(err.Error())
	}
	// both envelopes execute on the next commit
	for range time.Tick(time.Second) {
		if _, err := f.client.Pool(f.poolAddress.String()); err == nil {
			return
		}
	}
}

func (f *Fuzzer) getAccount(address crypto.AddressI, asset uint64) *fsm.Account {
	if cached, ok := f.state.GetAccount(address, asset); ok {
		return cached
	}
	acc, err := f.client.Account(address.String(), asset)
	if err != nil {
		f.log.Fatal(err.Error())
	}
	f.state.SetAccount(acc)
	return acc
}

// nextSequence hands out the next unused sequence for an address, querying the node
// the first time an address shows up after a reset
func (f *Fuzzer) nextSequence(address crypto.AddressI) uint64 {
	if cached, ok := f.state.GetSequence(address); ok {
		f.state.SetSequence(address, cached+1)
		return cached + 1
	}
	last, err := f.client.Sequence(address.String())
	if err != nil {
		f.log.Fatal(err.Error())
	}
	f.state.SetSequence(address, last+1)
	return last + 1
}

// watchPoolLoop resets the dependent state whenever the engine commits a tick and
// cross checks the pool against the properties that must hold under any mix of
// operations: the claim ledger sums to the supply and the invariant root never
// drops below it
func (f *Fuzzer) watchPoolLoop() {
	for range time.Tick(5 * time.Second) {
		p, err := f.client.Tick()
		if err != nil {
			f.log.Error(err.Error())
			continue
		}
		f.state.RLock()
		reset := p.Tick > f.state.tick
		f.state.RUnlock()
		if !reset {
			continue
		}
		f.log.Infof("New tick detected: %d, resetting dependent state", p.Tick)
		f.state.Lock()
		f.state.Reset(p.Tick)
		f.state.Unlock()
		f.checkPool(p.Tick)
	}
}

func (f *Fuzzer) checkPool(tick uint32) {
	pool, err := f.client.Pool(f.poolAddress.String())
	if err != nil {
		f.log.Error(err.Error())
		return
	}
	supply, err := f.client.Supply(f.poolAddress.String())
	if err != nil {
		f.log.Error(err.Error())
		return
	}
	// every claim in the ledger must be backed, their sum is exactly the supply
	page, err := f.client.Claims(f.poolAddress.String(), lib.PageParams{PerPage: 1000})
	if err != nil {
		f.log.Error(err.Error())
		return
	}
	total := lib.NewAmount(0)
	for _, claim := range *page.Results.(*fsm.Claims) {
		total.Add(total, claim.Amount)
	}
	if total.Cmp(supply.Supply) != 0 {
		f.log.Fatalf("claims sum %s does not match supply %s at tick %d", total.Dec(), supply.Supply.Dec(), tick)
	}
	// the invariant root only grows relative to the supply, fees accrue and never leak
	if root := lib.SqrtProduct(pool.ReserveA, pool.ReserveB); root.Cmp(supply.Supply) < 0 {
		f.log.Fatalf("invariant root %s fell below claim supply %s at tick %d", root.Dec(), supply.Supply.Dec(), tick)
	}
	if !supply.Supply.IsZero() && (pool.ReserveA.IsZero() || pool.ReserveB.IsZero()) {
		f.log.Fatalf("pool drained to %s/%s with live supply %s at tick %d", pool.ReserveA.Dec(), pool.ReserveB.Dec(), supply.Supply.Dec(), tick)
	}
	if pool.LastUpdateTick > tick {
		f.log.Fatalf("pool commit tick %d is ahead of the engine clock %d", pool.LastUpdateTick, tick)
	}
}
