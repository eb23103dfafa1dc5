package fsm

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

// GenesisState is the complete starting state of the engine: governance parameters,
// funded accounts, the pool set and any pre existing claim distribution
type GenesisState struct {
	Params   *Params    `json:"params,omitempty"`
	Accounts []*Account `json:"accounts,omitempty"`
	Pools    []*Pool    `json:"pools,omitempty"`
	Claims   []*Claim   `json:"claims,omitempty"`
}

// NewFromGenesisFile() creates a new beginning state from a file
func (s *StateMachine) NewFromGenesisFile() lib.ErrorI {
	genesis, err := s.ReadGenesisFromFile()
	if err != nil {
		return err
	}
	// events emitted while seeding carry the genesis stage reference
	s.events.Refer(lib.EventStageGenesis)
	defer s.events.Refer("")
	if err = s.NewStateFromGenesis(genesis); err != nil {
		return err
	}
	if _, err = s.FlushEvents(0); err != nil {
		return err
	}
	store, ok := s.store.(lib.StoreI)
	if !ok {
		return ErrWrongStoreType()
	}
	if _, err = store.Commit(); err != nil {
		return err
	}
	// the committed genesis occupies version one; the next tick continues from there
	s.tick = uint32(store.Version()) + 1
	return nil
}

// ReadGenesisFromFile() reads a GenesisState object from the data directory
func (s *StateMachine) ReadGenesisFromFile() (genesis *GenesisState, e lib.ErrorI) {
	genesis = new(GenesisState)
	bz, err := os.ReadFile(filepath.Join(s.Config.DataDirPath, lib.GenesisFilePath))
	if err != nil {
		return nil, ErrReadGenesisFile(err)
	}
	if err = json.Unmarshal(bz, genesis); err != nil {
		return nil, lib.ErrJSONUnmarshal(err)
	}
	e = s.ValidateGenesisState(genesis)
	return
}

// NewStateFromGenesis() creates a new beginning state using a GenesisState object
func (s *StateMachine) NewStateFromGenesis(genesis *GenesisState) lib.ErrorI {
	if err := s.SetAccounts(genesis.Accounts); err != nil {
		return err
	}
	for _, pool := range genesis.Pools {
		pool.normalize()
		if err := s.SetPool(pool); err != nil {
			return err
		}
		if err := s.Set(KeyForPair(pool.AssetA, pool.AssetB), pool.Address); err != nil {
			return err
		}
		if err := s.EventPoolCreate(pool, nil); err != nil {
			return err
		}
	}
	if err := s.setClaimsFromGenesis(genesis.Claims); err != nil {
		return err
	}
	params := genesis.Params
	if params == nil {
		params = DefaultParams()
	}
	return s.SetParams(params)
}

// setClaimsFromGenesis() writes the claim records and rebuilds each pool's claim
// supply as the sum of its holders' balances
func (s *StateMachine) setClaimsFromGenesis(claims []*Claim) lib.ErrorI {
	supplies := make(map[string]*uint256.Int)
	for _, claim := range claims {
		if err := s.SetClaim(claim); err != nil {
			return err
		}
		supply, ok := supplies[string(claim.PoolAddress)]
		if !ok {
			supply = lib.NewAmount(0)
			supplies[string(claim.PoolAddress)] = supply
		}
		supply.Add(supply, lib.CloneAmount(claim.Amount))
	}
	for poolAddress, supply := range supplies {
		if err := s.setClaimSupply([]byte(poolAddress), supply); err != nil {
			return err
		}
	}
	return nil
}

// ValidateGenesisState() validates a GenesisState object
func (s *StateMachine) ValidateGenesisState(genesis *GenesisState) lib.ErrorI {
	if genesis.Params != nil {
		if err := genesis.Params.Check(); err != nil {
			return err
		}
	}
	for _, account := range genesis.Accounts {
		if len(account.Address) != crypto.AddressSize {
			return ErrInvalidGenesis("account address size")
		}
		if account.Asset == 0 {
			return ErrInvalidGenesis("account references the reserved asset id")
		}
	}
	pools := make(map[string]struct{}, len(genesis.Pools))
	for _, pool := range genesis.Pools {
		pool.normalize()
		if pool.AssetA == 0 || pool.AssetB == 0 || pool.AssetA >= pool.AssetB {
			return ErrInvalidGenesis("pool asset pair is not canonical")
		}
		if !bytes.Equal(pool.Address, PoolAddress(pool.AssetA, pool.AssetB)) {
			return ErrInvalidGenesis("pool address does not match its asset pair")
		}
		if pool.ReserveA.Cmp(lib.MaxReserve) > 0 || pool.ReserveB.Cmp(lib.MaxReserve) > 0 {
			return ErrInvalidGenesis("pool reserves exceed the representable bound")
		}
		if pool.GuardState != GuardUnlocked {
			return ErrInvalidGenesis("pool imported in a locked state")
		}
		if _, ok := pools[string(pool.Address)]; ok {
			return ErrInvalidGenesis("duplicate pool for asset pair")
		}
		pools[string(pool.Address)] = struct{}{}
	}
	for _, claim := range genesis.Claims {
		if _, ok := pools[string(claim.PoolAddress)]; !ok {
			return ErrInvalidGenesis("claim references an unknown pool")
		}
		if len(claim.Owner) != crypto.AddressSize {
			return ErrInvalidGenesis("claim owner address size")
		}
	}
	return nil
}

// ExportState() creates a GenesisState object from the current state
func (s *StateMachine) ExportState() (genesis *GenesisState, err lib.ErrorI) {
	genesis = new(GenesisState)
	genesis.Accounts, err = s.GetAccounts()
	if err != nil {
		return nil, err
	}
	genesis.Pools, err = s.GetPools()
	if err != nil {
		return nil, err
	}
	genesis.Claims, err = s.GetClaims()
	if err != nil {
		return nil, err
	}
	genesis.Params, err = s.GetParams()
	if err != nil {
		return nil, err
	}
	return
}
