package fsm

import (
	"bytes"
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

// GuardState is the persisted reentrancy guard position of a pool
type GuardState uint64

const (
	GuardUnlocked GuardState = iota
	GuardLocked
)

// PoolsPageName is the registered page type for pool queries
const PoolsPageName = "pools"

func init() {
	lib.RegisteredPageables[PoolsPageName] = new(Pools)
}

// Pool is the accounting record for a two asset constant product market.
// Reserves track the last committed balances, the cumulative prices feed
// time weighted average price oracles, and the invariant checkpoint is the
// basis for protocol fee share minting
type Pool struct {
	Address             lib.HexBytes // derived from the ordered asset pair
	AssetA              uint64       // id of the first asset of the ordered pair
	AssetB              uint64       // id of the second asset of the ordered pair
	ReserveA            *uint256.Int // committed balance of asset A, bounded by MaxReserve
	ReserveB            *uint256.Int // committed balance of asset B, bounded by MaxReserve
	LastUpdateTick      uint32       // tick of the last reserve commit
	CumulativePriceA    *uint256.Int // sum of UQ112.112(reserveB/reserveA) per elapsed tick, wrapping
	CumulativePriceB    *uint256.Int // sum of UQ112.112(reserveA/reserveB) per elapsed tick, wrapping
	InvariantCheckpoint *uint256.Int // isqrt(reserveA*reserveB) at the last fee settlement
	GuardState          GuardState   // reentrancy guard position
}

// PoolAddress() derives the canonical address for an ordered asset pair
func PoolAddress(assetA, assetB uint64) []byte {
	return crypto.ShortHash(lib.JoinLenPrefix([]byte("pool"), formatUint64(assetA), formatUint64(assetB)))
}

// initialize() records the asset pair identities exactly once
func (x *Pool) initialize(assetA, assetB uint64) lib.ErrorI {
	if x.AssetA != 0 || x.AssetB != 0 {
		return ErrForbidden()
	}
	x.AssetA, x.AssetB = assetA, assetB
	return nil
}

// normalize() replaces nil amounts with zero so arithmetic never sees a nil pointer
func (x *Pool) normalize() {
	x.ReserveA = lib.CloneAmount(x.ReserveA)
	x.ReserveB = lib.CloneAmount(x.ReserveB)
	x.CumulativePriceA = lib.CloneAmount(x.CumulativePriceA)
	x.CumulativePriceB = lib.CloneAmount(x.CumulativePriceB)
	x.InvariantCheckpoint = lib.CloneAmount(x.InvariantCheckpoint)
}

// reserveFor() maps an asset id to its reserve, the opposing reserve and the opposing asset id
func (x *Pool) reserveFor(asset uint64) (reserveIn, reserveOut *uint256.Int, assetOut uint64, err lib.ErrorI) {
	switch asset {
	case x.AssetA:
		return x.ReserveA, x.ReserveB, x.AssetB, nil
	case x.AssetB:
		return x.ReserveB, x.ReserveA, x.AssetA, nil
	default:
		return nil, nil, 0, ErrUnknownAsset(asset)
	}
}

// CreatePool() registers a pool for a pair of distinct assets, deriving its canonical address.
// The pair is ordered by asset id so both orderings resolve to the same pool
func (s *StateMachine) CreatePool(assetA, assetB uint64, caller []byte) (address []byte, err lib.ErrorI) {
	if assetA == 0 || assetB == 0 || assetA == assetB {
		return nil, ErrInvalidAssetPair()
	}
	// canonicalize the pair ordering
	if assetA > assetB {
		assetA, assetB = assetB, assetA
	}
	// reject a duplicate pair
	existing, err := s.Get(KeyForPair(assetA, assetB))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPoolExists(assetA, assetB)
	}
	address = PoolAddress(assetA, assetB)
	err = s.atomic(func() (err lib.ErrorI) {
		pool := &Pool{Address: address}
		pool.normalize()
		if err = pool.initialize(assetA, assetB); err != nil {
			return
		}
		pool.LastUpdateTick = s.tick
		if err = s.Set(KeyForPair(assetA, assetB), address); err != nil {
			return
		}
		if err = s.SetPool(pool); err != nil {
			return
		}
		return s.EventPoolCreate(pool, caller)
	})
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Created pool %s for pair %d:%d", lib.HexBytes(address), assetA, assetB)
	s.notifyPoolCount()
	return
}

// GetPool() retrieves a pool record by address
func (s *StateMachine) GetPool(address []byte) (*Pool, lib.ErrorI) {
	bz, err := s.Get(KeyForPool(address))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, ErrPoolNotFound(address)
	}
	return s.unmarshalPool(bz)
}

// GetPoolByAssets() resolves the pool for an asset pair in either ordering
func (s *StateMachine) GetPoolByAssets(assetA, assetB uint64) (*Pool, lib.ErrorI) {
	if assetA > assetB {
		assetA, assetB = assetB, assetA
	}
	address, err := s.Get(KeyForPair(assetA, assetB))
	if err != nil {
		return nil, err
	}
	if address == nil {
		return nil, ErrPoolNotFound(nil)
	}
	return s.GetPool(address)
}

// GetPools() returns every pool record in the state
func (s *StateMachine) GetPools() (result []*Pool, err lib.ErrorI) {
	err = s.IterateAndExecute(PoolPrefix(), func(key, value []byte) lib.ErrorI {
		pool, e := s.unmarshalPool(value)
		if e != nil {
			return e
		}
		result = append(result, pool)
		return nil
	})
	return
}

// GetPoolsPaginated() returns a page of pool records
func (s *StateMachine) GetPoolsPaginated(p lib.PageParams) (page *lib.Page, err lib.ErrorI) {
	page, result := lib.NewPage(p, PoolsPageName), new(Pools)
	err = page.Load(PoolPrefix(), false, result, s.store, func(_, value []byte) lib.ErrorI {
		pool, e := s.unmarshalPool(value)
		if e != nil {
			return e
		}
		*result = append(*result, pool)
		return nil
	})
	return
}

// SetPool() upserts a pool record into the state
func (s *StateMachine) SetPool(pool *Pool) lib.ErrorI {
	bz, err := lib.Marshal(pool)
	if err != nil {
		return err
	}
	return s.Set(KeyForPool(pool.Address), bz)
}

// SetPools() upserts a list of pool records into the state
func (s *StateMachine) SetPools(pools []*Pool) lib.ErrorI {
	for _, pool := range pools {
		if err := s.SetPool(pool); err != nil {
			return err
		}
	}
	return nil
}

// poolBalances() observes the live pool balances of both assets through the asset ledger
func (s *StateMachine) poolBalances(pool *Pool) (balanceA, balanceB *uint256.Int, err lib.ErrorI) {
	if balanceA, err = s.assets.BalanceOf(pool.AssetA, pool.Address); err != nil {
		return
	}
	balanceB, err = s.assets.BalanceOf(pool.AssetB, pool.Address)
	return
}

// notifyPoolCount() refreshes the pool count gauge
func (s *StateMachine) notifyPoolCount() {
	pools, err := s.GetPools()
	if err != nil {
		return
	}
	s.metrics.UpdatePoolCount(len(pools))
}

func (s *StateMachine) unmarshalPool(bz []byte) (*Pool, lib.ErrorI) {
	pool := new(Pool)
	if err := lib.Unmarshal(bz, pool); err != nil {
		return nil, err
	}
	pool.normalize()
	return pool, nil
}

// Pools implements the Pageable interface for paged pool queries
type Pools []*Pool

func (p *Pools) Len() int          { return len(*p) }
func (p *Pools) New() lib.Pageable { return &Pools{} }

// MarshalBinary() encodes the pool in proto wire format
func (x *Pool) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.Address) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Address)
	}
	if x.AssetA != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, x.AssetA)
	}
	if x.AssetB != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, x.AssetB)
	}
	if bz := lib.AmountToBytes(x.ReserveA); bz != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := lib.AmountToBytes(x.ReserveB); bz != nil {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if x.LastUpdateTick != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(x.LastUpdateTick))
	}
	if bz := lib.AmountToBytes(x.CumulativePriceA); bz != nil {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := lib.AmountToBytes(x.CumulativePriceB); bz != nil {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := lib.AmountToBytes(x.InvariantCheckpoint); bz != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if x.GuardState != GuardUnlocked {
		b = protowire.AppendTag(b, 10, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(x.GuardState))
	}
	return b, nil
}

// UnmarshalBinary() decodes the pool from proto wire format
func (x *Pool) UnmarshalBinary(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Address, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.AssetA, data = v, data[m:]
		case num == 3 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.AssetB, data = v, data[m:]
		case num == 4 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.ReserveA, data = a, data[m:]
		case num == 5 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.ReserveB, data = a, data[m:]
		case num == 6 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.LastUpdateTick, data = uint32(v), data[m:]
		case num == 7 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.CumulativePriceA, data = a, data[m:]
		case num == 8 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.CumulativePriceB, data = a, data[m:]
		case num == 9 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.InvariantCheckpoint, data = a, data[m:]
		case num == 10 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.GuardState, data = GuardState(v), data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}

// poolJSON represents the JSON structure for Pool marshalling/unmarshalling
type poolJSON struct {
	Address             lib.HexBytes `json:"address"`
	AssetA              uint64       `json:"assetA"`
	AssetB              uint64       `json:"assetB"`
	ReserveA            string       `json:"reserveA"`
	ReserveB            string       `json:"reserveB"`
	LastUpdateTick      uint32       `json:"lastUpdateTick"`
	CumulativePriceA    string       `json:"cumulativePriceA"`
	CumulativePriceB    string       `json:"cumulativePriceB"`
	InvariantCheckpoint string       `json:"invariantCheckpoint"`
	GuardState          uint64       `json:"guardState,omitempty"`
}

// MarshalJSON() implements the json.Marshaler interface for Pool
func (x Pool) MarshalJSON() ([]byte, error) {
	return json.Marshal(poolJSON{
		Address:             x.Address,
		AssetA:              x.AssetA,
		AssetB:              x.AssetB,
		ReserveA:            lib.AmountToString(x.ReserveA),
		ReserveB:            lib.AmountToString(x.ReserveB),
		LastUpdateTick:      x.LastUpdateTick,
		CumulativePriceA:    lib.AmountToString(x.CumulativePriceA),
		CumulativePriceB:    lib.AmountToString(x.CumulativePriceB),
		InvariantCheckpoint: lib.AmountToString(x.InvariantCheckpoint),
		GuardState:          uint64(x.GuardState),
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for Pool
func (x *Pool) UnmarshalJSON(data []byte) (err error) {
	j := new(poolJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	reserveA, err := amountFromJSON(j.ReserveA)
	if err != nil {
		return
	}
	reserveB, err := amountFromJSON(j.ReserveB)
	if err != nil {
		return
	}
	cumulativeA, err := amountFromJSON(j.CumulativePriceA)
	if err != nil {
		return
	}
	cumulativeB, err := amountFromJSON(j.CumulativePriceB)
	if err != nil {
		return
	}
	checkpoint, err := amountFromJSON(j.InvariantCheckpoint)
	if err != nil {
		return
	}
	*x = Pool{
		Address:             j.Address,
		AssetA:              j.AssetA,
		AssetB:              j.AssetB,
		ReserveA:            reserveA,
		ReserveB:            reserveB,
		LastUpdateTick:      j.LastUpdateTick,
		CumulativePriceA:    cumulativeA,
		CumulativePriceB:    cumulativeB,
		InvariantCheckpoint: checkpoint,
		GuardState:          GuardState(j.GuardState),
	}
	return
}

// amountFromJSON() parses a base-10 amount from JSON, treating an omitted string as zero
func amountFromJSON(s string) (*uint256.Int, lib.ErrorI) {
	if s == "" {
		return lib.NewAmount(0), nil
	}
	return lib.AmountFromString(s)
}

// Equals() compares two pool records field by field
func (x *Pool) Equals(y *Pool) bool {
	if x == nil || y == nil {
		return x == y
	}
	if !bytes.Equal(x.Address, y.Address) || x.AssetA != y.AssetA || x.AssetB != y.AssetB {
		return false
	}
	if x.ReserveA.Cmp(y.ReserveA) != 0 || x.ReserveB.Cmp(y.ReserveB) != 0 {
		return false
	}
	if x.LastUpdateTick != y.LastUpdateTick || x.GuardState != y.GuardState {
		return false
	}
	if x.CumulativePriceA.Cmp(y.CumulativePriceA) != 0 || x.CumulativePriceB.Cmp(y.CumulativePriceB) != 0 {
		return false
	}
	return x.InvariantCheckpoint.Cmp(y.InvariantCheckpoint) == 0
}
