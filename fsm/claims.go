package fsm

import (
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"google.golang.org/protobuf/encoding/protowire"
)

// Claim token ledger: claims are proportional ownership shares of a pool's reserves.
// They are minted on deposit, burned on withdrawal and transferable like any balance.
// The total supply per pool is tracked separately so proportional math never iterates

// ClaimsPageName is the registered page type for claim queries
const ClaimsPageName = "claims"

func init() {
	lib.RegisteredPageables[ClaimsPageName] = new(Claims)
}

// Claim is a single owner's claim token balance against a single pool
type Claim struct {
	PoolAddress lib.HexBytes // the pool the claim is against
	Owner       lib.HexBytes // owner address
	Amount      *uint256.Int // claim tokens held
}

// GetClaim() retrieves a claim record, returning a zero balance for an absent one
func (s *StateMachine) GetClaim(poolAddress, owner []byte) (*Claim, lib.ErrorI) {
	bz, err := s.Get(KeyForClaim(poolAddress, owner))
	if err != nil {
		return nil, err
	}
	claim := &Claim{PoolAddress: poolAddress, Owner: owner, Amount: lib.NewAmount(0)}
	if bz == nil {
		return claim, nil
	}
	if err = lib.Unmarshal(bz, claim); err != nil {
		return nil, err
	}
	claim.Amount = lib.CloneAmount(claim.Amount)
	return claim, nil
}

// GetClaims() returns every claim record in the state
func (s *StateMachine) GetClaims() (result []*Claim, err lib.ErrorI) {
	err = s.IterateAndExecute(ClaimPrefix(), func(key, value []byte) lib.ErrorI {
		claim := new(Claim)
		if e := lib.Unmarshal(value, claim); e != nil {
			return e
		}
		claim.Amount = lib.CloneAmount(claim.Amount)
		result = append(result, claim)
		return nil
	})
	return
}

// GetClaimsByPoolPaginated() returns a page of claim records held against one pool
func (s *StateMachine) GetClaimsByPoolPaginated(poolAddress []byte, p lib.PageParams) (page *lib.Page, err lib.ErrorI) {
	page, result := lib.NewPage(p, ClaimsPageName), new(Claims)
	err = page.Load(KeyForClaimsOfPool(poolAddress), false, result, s.store, func(_, value []byte) lib.ErrorI {
		claim := new(Claim)
		if e := lib.Unmarshal(value, claim); e != nil {
			return e
		}
		claim.Amount = lib.CloneAmount(claim.Amount)
		*result = append(*result, claim)
		return nil
	})
	return
}

// SetClaim() upserts a claim record, deleting it when the balance reaches zero
func (s *StateMachine) SetClaim(claim *Claim) lib.ErrorI {
	key := KeyForClaim(claim.PoolAddress, claim.Owner)
	if claim.Amount == nil || claim.Amount.IsZero() {
		return s.Delete(key)
	}
	bz, err := lib.Marshal(claim)
	if err != nil {
		return err
	}
	return s.Set(key, bz)
}

// ClaimBalance() returns the claim tokens an owner holds against a pool
func (s *StateMachine) ClaimBalance(poolAddress, owner []byte) (*uint256.Int, lib.ErrorI) {
	claim, err := s.GetClaim(poolAddress, owner)
	if err != nil {
		return nil, err
	}
	return claim.Amount, nil
}

// ClaimSupply() returns the total claim tokens outstanding against a pool
func (s *StateMachine) ClaimSupply(poolAddress []byte) (*uint256.Int, lib.ErrorI) {
	bz, err := s.Get(KeyForClaimSupply(poolAddress))
	if err != nil {
		return nil, err
	}
	return lib.AmountFromBytes(bz)
}

// setClaimSupply() writes the total supply, deleting the record at zero
func (s *StateMachine) setClaimSupply(poolAddress []byte, supply *uint256.Int) lib.ErrorI {
	key := KeyForClaimSupply(poolAddress)
	if supply.IsZero() {
		return s.Delete(key)
	}
	return s.Set(key, supply.Bytes())
}

// MintClaims() creates claim tokens for an owner and grows the pool's total supply
func (s *StateMachine) MintClaims(poolAddress, to []byte, amount *uint256.Int) lib.ErrorI {
	claim, err := s.GetClaim(poolAddress, to)
	if err != nil {
		return err
	}
	claim.Amount.Add(claim.Amount, amount)
	if err = s.SetClaim(claim); err != nil {
		return err
	}
	supply, err := s.ClaimSupply(poolAddress)
	if err != nil {
		return err
	}
	return s.setClaimSupply(poolAddress, supply.Add(supply, amount))
}

// BurnClaims() destroys claim tokens held by an owner and shrinks the pool's total supply
func (s *StateMachine) BurnClaims(poolAddress, from []byte, amount *uint256.Int) lib.ErrorI {
	claim, err := s.GetClaim(poolAddress, from)
	if err != nil {
		return err
	}
	if claim.Amount.Cmp(amount) < 0 {
		return ErrInsufficientClaims()
	}
	claim.Amount.Sub(claim.Amount, amount)
	if err = s.SetClaim(claim); err != nil {
		return err
	}
	supply, err := s.ClaimSupply(poolAddress)
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientClaims()
	}
	return s.setClaimSupply(poolAddress, supply.Sub(supply, amount))
}

// TransferClaims() moves claim tokens between owners without changing the total supply
func (s *StateMachine) TransferClaims(poolAddress, from, to []byte, amount *uint256.Int) lib.ErrorI {
	fromClaim, err := s.GetClaim(poolAddress, from)
	if err != nil {
		return err
	}
	if fromClaim.Amount.Cmp(amount) < 0 {
		return ErrInsufficientClaims()
	}
	fromClaim.Amount.Sub(fromClaim.Amount, amount)
	if err = s.SetClaim(fromClaim); err != nil {
		return err
	}
	toClaim, err := s.GetClaim(poolAddress, to)
	if err != nil {
		return err
	}
	toClaim.Amount.Add(toClaim.Amount, amount)
	return s.SetClaim(toClaim)
}

// Claims implements the Pageable interface for paged claim queries
type Claims []*Claim

func (c *Claims) Len() int          { return len(*c) }
func (c *Claims) New() lib.Pageable { return &Claims{} }

// MarshalBinary() encodes the claim in proto wire format
func (x *Claim) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	if len(x.Owner) != 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Owner)
	}
	if bz := lib.AmountToBytes(x.Amount); bz != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	return b, nil
}

// UnmarshalBinary() decodes the claim from proto wire format
func (x *Claim) UnmarshalBinary(data []byte) error {
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
			x.PoolAddress, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Owner, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 3 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.Amount, data = a, data[m:]
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

// claimJSON represents the JSON structure for Claim marshalling/unmarshalling
type claimJSON struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	Owner       lib.HexBytes `json:"owner"`
	Amount      string       `json:"amount"`
}

// MarshalJSON() implements the json.Marshaler interface for Claim
func (x Claim) MarshalJSON() ([]byte, error) {
	return json.Marshal(claimJSON{PoolAddress: x.PoolAddress, Owner: x.Owner, Amount: lib.AmountToString(x.Amount)})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for Claim
func (x *Claim) UnmarshalJSON(data []byte) (err error) {
	j := new(claimJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	amount, err := amountFromJSON(j.Amount)
	if err != nil {
		return
	}
	*x = Claim{PoolAddress: j.PoolAddress, Owner: j.Owner, Amount: amount}
	return
}
