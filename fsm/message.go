package fsm

import (
	"encoding"
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	MessageNameCreatePool   = "create_pool"
	MessageNameTransfer     = "transfer"
	MessageNameDeposit      = "deposit"
	MessageNameWithdraw     = "withdraw"
	MessageNameSwap         = "swap"
	MessageNameSync         = "sync"
	MessageNameSkim         = "skim"
	MessageNameCollectFees  = "collect_fees"
	MessageNameUpdateParams = "update_params"
)

// MessageI is the interface all transactable messages satisfy
type MessageI interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	Check() lib.ErrorI // stateless sanity validation of the message body
	Name() string      // the unique route name of the message
	Recipient() []byte // counterparty address for event indexing, nil if none
}

var (
	_ MessageI = &MessageCreatePool{}
	_ MessageI = &MessageTransfer{}
	_ MessageI = &MessageDeposit{}
	_ MessageI = &MessageWithdraw{}
	_ MessageI = &MessageSwap{}
	_ MessageI = &MessageSync{}
	_ MessageI = &MessageSkim{}
	_ MessageI = &MessageCollectFees{}
	_ MessageI = &MessageUpdateParams{}
)

// EmptyMessageForName() returns a fresh zero value of the message registered under name
func EmptyMessageForName(name string) (MessageI, lib.ErrorI) {
	switch name {
	case MessageNameCreatePool:
		return new(MessageCreatePool), nil
	case MessageNameTransfer:
		return new(MessageTransfer), nil
	case MessageNameDeposit:
		return new(MessageDeposit), nil
	case MessageNameWithdraw:
		return new(MessageWithdraw), nil
	case MessageNameSwap:
		return new(MessageSwap), nil
	case MessageNameSync:
		return new(MessageSync), nil
	case MessageNameSkim:
		return new(MessageSkim), nil
	case MessageNameCollectFees:
		return new(MessageCollectFees), nil
	case MessageNameUpdateParams:
		return new(MessageUpdateParams), nil
	default:
		return nil, ErrUnknownMessageName(name)
	}
}

// HandleMessage() routes a message to its handler by concrete type
func (s *StateMachine) HandleMessage(sender []byte, msg MessageI) lib.ErrorI {
	switch x := msg.(type) {
	case *MessageCreatePool:
		return s.HandleMessageCreatePool(sender, x)
	case *MessageTransfer:
		return s.HandleMessageTransfer(sender, x)
	case *MessageDeposit:
		return s.HandleMessageDeposit(sender, x)
	case *MessageWithdraw:
		return s.HandleMessageWithdraw(sender, x)
	case *MessageSwap:
		return s.HandleMessageSwap(sender, x)
	case *MessageSync:
		return s.HandleMessageSync(sender, x)
	case *MessageSkim:
		return s.HandleMessageSkim(sender, x)
	case *MessageCollectFees:
		return s.HandleMessageCollectFees(sender, x)
	case *MessageUpdateParams:
		return s.HandleMessageUpdateParams(sender, x)
	default:
		return ErrUnknownMessage(x)
	}
}

// HandleMessageCreatePool() registers a new pool for the asset pair
func (s *StateMachine) HandleMessageCreatePool(sender []byte, msg *MessageCreatePool) lib.ErrorI {
	_, err := s.CreatePool(msg.AssetA, msg.AssetB, sender)
	return err
}

// HandleMessageTransfer() sends assets or pool claims from the sender to another address
func (s *StateMachine) HandleMessageTransfer(sender []byte, msg *MessageTransfer) lib.ErrorI {
	return s.atomic(func() lib.ErrorI {
		if len(msg.PoolAddress) != 0 {
			return s.TransferClaims(msg.PoolAddress, sender, msg.ToAddress, msg.Amount)
		}
		return s.transferIn(msg.Asset, sender, msg.ToAddress, msg.Amount)
	})
}

// HandleMessageDeposit() funds a pool with both assets and mints claims for what arrived
func (s *StateMachine) HandleMessageDeposit(sender []byte, msg *MessageDeposit) lib.ErrorI {
	return s.atomic(func() lib.ErrorI {
		pool, err := s.GetPool(msg.PoolAddress)
		if err != nil {
			return err
		}
		if err = s.transferIn(pool.AssetA, sender, pool.Address, msg.AmountA); err != nil {
			return err
		}
		if err = s.transferIn(pool.AssetB, sender, pool.Address, msg.AmountB); err != nil {
			return err
		}
		_, err = s.DepositLiquidity(msg.PoolAddress, sender)
		return err
	})
}

// HandleMessageWithdraw() surrenders claims to the pool and redeems the backing assets
func (s *StateMachine) HandleMessageWithdraw(sender []byte, msg *MessageWithdraw) lib.ErrorI {
	return s.atomic(func() lib.ErrorI {
		pool, err := s.GetPool(msg.PoolAddress)
		if err != nil {
			return err
		}
		if err = s.TransferClaims(pool.Address, sender, pool.Address, msg.Liquidity); err != nil {
			return err
		}
		_, _, err = s.WithdrawLiquidity(msg.PoolAddress, sender)
		return err
	})
}

// HandleMessageSwap() funds the pool with the input asset and executes the trade
func (s *StateMachine) HandleMessageSwap(sender []byte, msg *MessageSwap) lib.ErrorI {
	return s.atomic(func() lib.ErrorI {
		pool, err := s.GetPool(msg.PoolAddress)
		if err != nil {
			return err
		}
		if err = s.transferIn(msg.InputAsset, sender, pool.Address, msg.InputAmount); err != nil {
			return err
		}
		return s.Swap(msg.PoolAddress, sender, msg.InputAsset, msg.OutputAmount)
	})
}

// HandleMessageSync() forces the pool reserves to match its balances
func (s *StateMachine) HandleMessageSync(_ []byte, msg *MessageSync) lib.ErrorI {
	return s.ForceSync(msg.PoolAddress)
}

// HandleMessageSkim() pays out pool balances above the reserves, to the sender by default
func (s *StateMachine) HandleMessageSkim(sender []byte, msg *MessageSkim) lib.ErrorI {
	recipient := msg.ToAddress
	if len(recipient) == 0 {
		recipient = sender
	}
	return s.SkimExcess(msg.PoolAddress, sender, recipient)
}

// HandleMessageCollectFees() settles the protocol fee share on demand
func (s *StateMachine) HandleMessageCollectFees(_ []byte, msg *MessageCollectFees) lib.ErrorI {
	return s.ForceFeeCollection(msg.PoolAddress)
}

// HandleMessageUpdateParams() applies a governance parameter change from the authority
func (s *StateMachine) HandleMessageUpdateParams(sender []byte, msg *MessageUpdateParams) lib.ErrorI {
	return s.UpdateParams(sender, msg.FeeEnabled, msg.FeeRecipient)
}

// checkAddress() validates an account or pool address
func checkAddress(address []byte) lib.ErrorI {
	if len(address) != crypto.AddressSize {
		return lib.ErrInvalidAddress()
	}
	return nil
}

// checkAmount() validates that an amount is present and nonzero
func checkAmount(amount *uint256.Int) lib.ErrorI {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount()
	}
	return nil
}

// MessageCreatePool registers a pool for an unordered pair of distinct assets
type MessageCreatePool struct {
	AssetA uint64 `json:"assetA"`
	AssetB uint64 `json:"assetB"`
}

func (x *MessageCreatePool) Check() lib.ErrorI {
	if x.AssetA == 0 || x.AssetB == 0 || x.AssetA == x.AssetB {
		return ErrInvalidAssetPair()
	}
	return nil
}

func (x *MessageCreatePool) Name() string      { return MessageNameCreatePool }
func (x *MessageCreatePool) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageCreatePool) MarshalBinary() ([]byte, error) {
	var b []byte
	if x.AssetA != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, x.AssetA)
	}
	if x.AssetB != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, x.AssetB)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageCreatePool) UnmarshalBinary(data []byte) error {
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
			x.AssetA, data = v, data[m:]
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.AssetB, data = v, data[m:]
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

// MessageTransfer sends an amount to another address: a plain asset balance when
// PoolAddress is empty, or claims on that pool when it is set
type MessageTransfer struct {
	Asset       uint64
	PoolAddress lib.HexBytes
	ToAddress   lib.HexBytes
	Amount      *uint256.Int
}

func (x *MessageTransfer) Check() lib.ErrorI {
	if len(x.PoolAddress) != 0 {
		if err := checkAddress(x.PoolAddress); err != nil {
			return err
		}
	} else if x.Asset == 0 {
		return ErrUnknownAsset(x.Asset)
	}
	if err := checkAddress(x.ToAddress); err != nil {
		return err
	}
	return checkAmount(x.Amount)
}

func (x *MessageTransfer) Name() string      { return MessageNameTransfer }
func (x *MessageTransfer) Recipient() []byte { return x.ToAddress }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageTransfer) MarshalBinary() ([]byte, error) {
	var b []byte
	if x.Asset != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, x.Asset)
	}
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	if len(x.ToAddress) != 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, x.ToAddress)
	}
	if bz := lib.AmountToBytes(x.Amount); bz != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageTransfer) UnmarshalBinary(data []byte) error {
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
			x.Asset, data = v, data[m:]
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.PoolAddress, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 3 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.ToAddress, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 4 && typ == protowire.BytesType:
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

// messageTransferJSON represents the JSON structure for MessageTransfer
type messageTransferJSON struct {
	Asset       uint64       `json:"asset,omitempty"`
	PoolAddress lib.HexBytes `json:"poolAddress,omitempty"`
	ToAddress   lib.HexBytes `json:"toAddress"`
	Amount      string       `json:"amount"`
}

// MarshalJSON() implements the json.Marshaler interface for MessageTransfer
func (x MessageTransfer) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageTransferJSON{
		Asset:       x.Asset,
		PoolAddress: x.PoolAddress,
		ToAddress:   x.ToAddress,
		Amount:      lib.AmountToString(x.Amount),
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for MessageTransfer
func (x *MessageTransfer) UnmarshalJSON(data []byte) (err error) {
	j := new(messageTransferJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	amount, err := amountFromJSON(j.Amount)
	if err != nil {
		return
	}
	*x = MessageTransfer{Asset: j.Asset, PoolAddress: j.PoolAddress, ToAddress: j.ToAddress, Amount: amount}
	return
}

// MessageDeposit funds a pool with both of its assets and mints liquidity claims
type MessageDeposit struct {
	PoolAddress lib.HexBytes
	AmountA     *uint256.Int
	AmountB     *uint256.Int
}

func (x *MessageDeposit) Check() lib.ErrorI {
	if err := checkAddress(x.PoolAddress); err != nil {
		return err
	}
	if err := checkAmount(x.AmountA); err != nil {
		return err
	}
	return checkAmount(x.AmountB)
}

func (x *MessageDeposit) Name() string      { return MessageNameDeposit }
func (x *MessageDeposit) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageDeposit) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	if bz := lib.AmountToBytes(x.AmountA); bz != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := lib.AmountToBytes(x.AmountB); bz != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageDeposit) UnmarshalBinary(data []byte) error {
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
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.AmountA, data = a, data[m:]
		case num == 3 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.AmountB, data = a, data[m:]
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

// messageDepositJSON represents the JSON structure for MessageDeposit
type messageDepositJSON struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	AmountA     string       `json:"amountA"`
	AmountB     string       `json:"amountB"`
}

// MarshalJSON() implements the json.Marshaler interface for MessageDeposit
func (x MessageDeposit) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageDepositJSON{
		PoolAddress: x.PoolAddress,
		AmountA:     lib.AmountToString(x.AmountA),
		AmountB:     lib.AmountToString(x.AmountB),
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for MessageDeposit
func (x *MessageDeposit) UnmarshalJSON(data []byte) (err error) {
	j := new(messageDepositJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	amountA, err := amountFromJSON(j.AmountA)
	if err != nil {
		return
	}
	amountB, err := amountFromJSON(j.AmountB)
	if err != nil {
		return
	}
	*x = MessageDeposit{PoolAddress: j.PoolAddress, AmountA: amountA, AmountB: amountB}
	return
}

// MessageWithdraw surrenders liquidity claims and redeems the backing assets
type MessageWithdraw struct {
	PoolAddress lib.HexBytes
	Liquidity   *uint256.Int
}

func (x *MessageWithdraw) Check() lib.ErrorI {
	if err := checkAddress(x.PoolAddress); err != nil {
		return err
	}
	return checkAmount(x.Liquidity)
}

func (x *MessageWithdraw) Name() string      { return MessageNameWithdraw }
func (x *MessageWithdraw) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageWithdraw) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	if bz := lib.AmountToBytes(x.Liquidity); bz != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageWithdraw) UnmarshalBinary(data []byte) error {
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
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.Liquidity, data = a, data[m:]
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

// messageWithdrawJSON represents the JSON structure for MessageWithdraw
type messageWithdrawJSON struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	Liquidity   string       `json:"liquidity"`
}

// MarshalJSON() implements the json.Marshaler interface for MessageWithdraw
func (x MessageWithdraw) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageWithdrawJSON{
		PoolAddress: x.PoolAddress,
		Liquidity:   lib.AmountToString(x.Liquidity),
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for MessageWithdraw
func (x *MessageWithdraw) UnmarshalJSON(data []byte) (err error) {
	j := new(messageWithdrawJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	liquidity, err := amountFromJSON(j.Liquidity)
	if err != nil {
		return
	}
	*x = MessageWithdraw{PoolAddress: j.PoolAddress, Liquidity: liquidity}
	return
}

// MessageSwap trades an exact input of one pool asset for an exact output of the other
type MessageSwap struct {
	PoolAddress  lib.HexBytes
	InputAsset   uint64
	InputAmount  *uint256.Int
	OutputAmount *uint256.Int
}

func (x *MessageSwap) Check() lib.ErrorI {
	if err := checkAddress(x.PoolAddress); err != nil {
		return err
	}
	if x.InputAsset == 0 {
		return ErrUnknownAsset(x.InputAsset)
	}
	if err := checkAmount(x.InputAmount); err != nil {
		return err
	}
	return checkAmount(x.OutputAmount)
}

func (x *MessageSwap) Name() string      { return MessageNameSwap }
func (x *MessageSwap) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageSwap) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	if x.InputAsset != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, x.InputAsset)
	}
	if bz := lib.AmountToBytes(x.InputAmount); bz != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := lib.AmountToBytes(x.OutputAmount); bz != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageSwap) UnmarshalBinary(data []byte) error {
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
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.InputAsset, data = v, data[m:]
		case num == 3 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.InputAmount, data = a, data[m:]
		case num == 4 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := lib.AmountFromBytes(v)
			if err != nil {
				return err
			}
			x.OutputAmount, data = a, data[m:]
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

// messageSwapJSON represents the JSON structure for MessageSwap
type messageSwapJSON struct {
	PoolAddress  lib.HexBytes `json:"poolAddress"`
	InputAsset   uint64       `json:"inputAsset"`
	InputAmount  string       `json:"inputAmount"`
	OutputAmount string       `json:"outputAmount"`
}

// MarshalJSON() implements the json.Marshaler interface for MessageSwap
func (x MessageSwap) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageSwapJSON{
		PoolAddress:  x.PoolAddress,
		InputAsset:   x.InputAsset,
		InputAmount:  lib.AmountToString(x.InputAmount),
		OutputAmount: lib.AmountToString(x.OutputAmount),
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for MessageSwap
func (x *MessageSwap) UnmarshalJSON(data []byte) (err error) {
	j := new(messageSwapJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	inputAmount, err := amountFromJSON(j.InputAmount)
	if err != nil {
		return
	}
	outputAmount, err := amountFromJSON(j.OutputAmount)
	if err != nil {
		return
	}
	*x = MessageSwap{PoolAddress: j.PoolAddress, InputAsset: j.InputAsset, InputAmount: inputAmount, OutputAmount: outputAmount}
	return
}

// MessageSync forces a pool's reserves to match its actual balances
type MessageSync struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
}

func (x *MessageSync) Check() lib.ErrorI { return checkAddress(x.PoolAddress) }
func (x *MessageSync) Name() string      { return MessageNameSync }
func (x *MessageSync) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageSync) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageSync) UnmarshalBinary(data []byte) error {
	return unmarshalPoolAddressOnly(data, &x.PoolAddress)
}

// MessageSkim pays out pool balances above the committed reserves
type MessageSkim struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	ToAddress   lib.HexBytes `json:"toAddress,omitempty"`
}

func (x *MessageSkim) Check() lib.ErrorI {
	if err := checkAddress(x.PoolAddress); err != nil {
		return err
	}
	if len(x.ToAddress) != 0 {
		return checkAddress(x.ToAddress)
	}
	return nil
}

func (x *MessageSkim) Name() string      { return MessageNameSkim }
func (x *MessageSkim) Recipient() []byte { return x.ToAddress }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageSkim) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	if len(x.ToAddress) != 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.ToAddress)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageSkim) UnmarshalBinary(data []byte) error {
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
			x.ToAddress, data = append(lib.HexBytes(nil), v...), data[m:]
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

// MessageCollectFees settles the protocol fee share on demand
type MessageCollectFees struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
}

func (x *MessageCollectFees) Check() lib.ErrorI { return checkAddress(x.PoolAddress) }
func (x *MessageCollectFees) Name() string      { return MessageNameCollectFees }
func (x *MessageCollectFees) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageCollectFees) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PoolAddress)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageCollectFees) UnmarshalBinary(data []byte) error {
	return unmarshalPoolAddressOnly(data, &x.PoolAddress)
}

// MessageUpdateParams applies a governance parameter change, accepted only from the authority
type MessageUpdateParams struct {
	FeeEnabled   bool         `json:"feeEnabled,omitempty"`
	FeeRecipient lib.HexBytes `json:"feeRecipient,omitempty"`
}

func (x *MessageUpdateParams) Check() lib.ErrorI {
	if x.FeeEnabled && len(x.FeeRecipient) != crypto.AddressSize {
		return ErrInvalidRecipient()
	}
	if len(x.FeeRecipient) != 0 {
		return checkAddress(x.FeeRecipient)
	}
	return nil
}

func (x *MessageUpdateParams) Name() string      { return MessageNameUpdateParams }
func (x *MessageUpdateParams) Recipient() []byte { return nil }

// MarshalBinary() encodes the message in proto wire format
func (x *MessageUpdateParams) MarshalBinary() ([]byte, error) {
	var b []byte
	if x.FeeEnabled {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if len(x.FeeRecipient) != 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.FeeRecipient)
	}
	return b, nil
}

// UnmarshalBinary() decodes the message from proto wire format
func (x *MessageUpdateParams) UnmarshalBinary(data []byte) error {
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

// unmarshalPoolAddressOnly() decodes the single address field shared by the
// pool maintenance messages
func unmarshalPoolAddressOnly(data []byte, address *lib.HexBytes) error {
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
			*address, data = append(lib.HexBytes(nil), v...), data[m:]
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
