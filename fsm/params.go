package fsm

import (
	"encoding/json"

	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

// Params are the governance parameters of the pool engine. When the fee share is
// enabled, a sixth of each pool's trading fee growth is minted to the recipient as
// claim tokens. The authority is the only address allowed to change parameters
type Params struct {
	FeeEnabled   bool         // whether protocol fee share minting is active
	FeeRecipient lib.HexBytes // receiver of minted fee share claims
	Authority    lib.HexBytes // address allowed to update these parameters
}

// DefaultParams() returns the params used when genesis does not provide any
func DefaultParams() *Params {
	return &Params{FeeEnabled: false}
}

// Check() validates the parameter set
func (x *Params) Check() lib.ErrorI {
	if x.FeeEnabled && len(x.FeeRecipient) != crypto.AddressSize {
		return ErrInvalidRecipient()
	}
	if len(x.FeeRecipient) != 0 && len(x.FeeRecipient) != crypto.AddressSize {
		return ErrInvalidRecipient()
	}
	if len(x.Authority) != 0 && len(x.Authority) != crypto.AddressSize {
		return ErrInvalidRecipient()
	}
	return nil
}

// GetParams() retrieves the governance parameters from the state
func (s *StateMachine) GetParams() (*Params, lib.ErrorI) {
	bz, err := s.Get(KeyForParams())
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return DefaultParams(), nil
	}
	params := new(Params)
	if err = lib.Unmarshal(bz, params); err != nil {
		return nil, err
	}
	return params, nil
}

// SetParams() writes the governance parameters to the state
func (s *StateMachine) SetParams(params *Params) lib.ErrorI {
	if err := params.Check(); err != nil {
		return err
	}
	bz, err := lib.Marshal(params)
	if err != nil {
		return err
	}
	return s.Set(KeyForParams(), bz)
}

// UpdateParams() replaces the fee configuration; only the authority may call it
func (s *StateMachine) UpdateParams(caller []byte, feeEnabled bool, feeRecipient []byte) lib.ErrorI {
	params, err := s.GetParams()
	if err != nil {
		return err
	}
	if len(params.Authority) == 0 || !crypto.NewAddress(params.Authority).Equals(crypto.NewAddress(caller)) {
		return ErrForbidden()
	}
	params.FeeEnabled, params.FeeRecipient = feeEnabled, feeRecipient
	return s.SetParams(params)
}

// MarshalBinary() encodes the params in proto wire format
func (x *Params) MarshalBinary() ([]byte, error) {
	var b []byte
	if x.FeeEnabled {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if len(x.FeeRecipient) != 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.FeeRecipient)
	}
	if len(x.Authority) != 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Authority)
	}
	return b, nil
}

// UnmarshalBinary() decodes the params from proto wire format
func (x *Params) UnmarshalBinary(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.FeeEnabled, data = v != 0, data[m:]
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.FeeRecipient, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 3 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Authority, data = append(lib.HexBytes(nil), v...), data[m:]
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

// paramsJSON represents the JSON structure for Params marshalling/unmarshalling
type paramsJSON struct {
	FeeEnabled   bool         `json:"feeEnabled"`
	FeeRecipient lib.HexBytes `json:"feeRecipient,omitempty"`
	Authority    lib.HexBytes `json:"authority,omitempty"`
}

// MarshalJSON() implements the json.Marshaler interface for Params
func (x Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsJSON{FeeEnabled: x.FeeEnabled, FeeRecipient: x.FeeRecipient, Authority: x.Authority})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for Params
func (x *Params) UnmarshalJSON(data []byte) (err error) {
	j := new(paramsJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	*x = Params{FeeEnabled: j.FeeEnabled, FeeRecipient: j.FeeRecipient, Authority: j.Authority}
	return
}
