package fsm

import (
	"encoding/binary"
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"google.golang.org/protobuf/encoding/protowire"
)

// TransferOutcome is the tri-state result an asset backend reports for a transfer.
// An explicit acknowledgement and the absence of any signal both count as success;
// only an explicit refusal is a failure
type TransferOutcome int

const (
	TransferAck TransferOutcome = iota
	TransferNoSignal
	TransferRefused
)

// AssetLedgerI moves and reads underlying asset balances on behalf of the pool engine.
// The engine never interprets balances beyond comparing them against committed reserves,
// so backends with transfer side effects (fees, callbacks) remain accounted correctly
type AssetLedgerI interface {
	// BalanceOf returns the balance an owner holds of the asset
	BalanceOf(asset uint64, owner []byte) (*uint256.Int, lib.ErrorI)
	// Transfer moves amount between owners and reports the outcome
	Transfer(asset uint64, from, to []byte, amount *uint256.Int) (TransferOutcome, lib.ErrorI)
}

// AccountsPageName is the registered page type for account queries
const AccountsPageName = "accounts"

func init() {
	lib.RegisteredPageables[AccountsPageName] = new(Accounts)
}

// Account is a single owner's balance of a single asset
type Account struct {
	Address lib.HexBytes // owner address
	Asset   uint64       // asset id
	Amount  *uint256.Int // balance held
}

// GetAccount() retrieves an account record, returning a zero balance for an absent one
func (s *StateMachine) GetAccount(address []byte, asset uint64) (*Account, lib.ErrorI) {
	bz, err := s.Get(KeyForAccount(address, asset))
	if err != nil {
		return nil, err
	}
	account := &Account{Address: address, Asset: asset, Amount: lib.NewAmount(0)}
	if bz == nil {
		return account, nil
	}
	if err = lib.Unmarshal(bz, account); err != nil {
		return nil, err
	}
	account.Amount = lib.CloneAmount(account.Amount)
	return account, nil
}

// GetAccounts() returns every account record in the state
func (s *StateMachine) GetAccounts() (result []*Account, err lib.ErrorI) {
	err = s.IterateAndExecute(AccountPrefix(), func(key, value []byte) lib.ErrorI {
		account := new(Account)
		if e := lib.Unmarshal(value, account); e != nil {
			return e
		}
		account.Amount = lib.CloneAmount(account.Amount)
		result = append(result, account)
		return nil
	})
	return
}

// GetAccountsPaginated() returns a page of account records
func (s *StateMachine) GetAccountsPaginated(p lib.PageParams) (page *lib.Page, err lib.ErrorI) {
	page, result := lib.NewPage(p, AccountsPageName), new(Accounts)
	err = page.Load(AccountPrefix(), false, result, s.store, func(_, value []byte) lib.ErrorI {
		account := new(Account)
		if e := lib.Unmarshal(value, account); e != nil {
			return e
		}
		account.Amount = lib.CloneAmount(account.Amount)
		*result = append(*result, account)
		return nil
	})
	return
}

// SetAccount() upserts an account record, deleting it when the balance reaches zero
func (s *StateMachine) SetAccount(account *Account) lib.ErrorI {
	key := KeyForAccount(account.Address, account.Asset)
	if account.Amount == nil || account.Amount.IsZero() {
		return s.Delete(key)
	}
	bz, err := lib.Marshal(account)
	if err != nil {
		return err
	}
	return s.Set(key, bz)
}

// SetAccounts() upserts a list of account records into the state
func (s *StateMachine) SetAccounts(accounts []*Account) lib.ErrorI {
	for _, account := range accounts {
		if err := s.SetAccount(account); err != nil {
			return err
		}
	}
	return nil
}

// AccountAdd() credits an owner's balance of an asset
func (s *StateMachine) AccountAdd(address []byte, asset uint64, amount *uint256.Int) lib.ErrorI {
	account, err := s.GetAccount(address, asset)
	if err != nil {
		return err
	}
	account.Amount.Add(account.Amount, amount)
	return s.SetAccount(account)
}

// AccountSub() debits an owner's balance of an asset
func (s *StateMachine) AccountSub(address []byte, asset uint64, amount *uint256.Int) lib.ErrorI {
	account, err := s.GetAccount(address, asset)
	if err != nil {
		return err
	}
	if account.Amount.Cmp(amount) < 0 {
		return ErrInsufficientFunds()
	}
	account.Amount.Sub(account.Amount, amount)
	return s.SetAccount(account)
}

// GetAccountSequence() retrieves the last executed envelope sequence for an address
func (s *StateMachine) GetAccountSequence(address []byte) (uint64, lib.ErrorI) {
	bz, err := s.Get(KeyForSequence(address))
	if err != nil {
		return 0, err
	}
	if len(bz) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(bz), nil
}

// SetAccountSequence() consumes a sequence number, rejecting any not newer than the last
func (s *StateMachine) SetAccountSequence(address []byte, sequence uint64) lib.ErrorI {
	last, err := s.GetAccountSequence(address)
	if err != nil {
		return err
	}
	if sequence <= last {
		return ErrInvalidSequence()
	}
	return s.Set(KeyForSequence(address), formatUint64(sequence))
}

// accountLedger is the default AssetLedgerI backed by the state machine's own account records
type accountLedger struct {
	sm *StateMachine
}

func (l *accountLedger) BalanceOf(asset uint64, owner []byte) (*uint256.Int, lib.ErrorI) {
	account, err := l.sm.GetAccount(owner, asset)
	if err != nil {
		return nil, err
	}
	return account.Amount, nil
}

func (l *accountLedger) Transfer(asset uint64, from, to []byte, amount *uint256.Int) (TransferOutcome, lib.ErrorI) {
	if err := l.sm.AccountSub(from, asset, amount); err != nil {
		if err.Module() == lib.PoolModule && err.Code() == lib.CodeInsufficientFunds {
			return TransferRefused, nil
		}
		return TransferRefused, err
	}
	if err := l.sm.AccountAdd(to, asset, amount); err != nil {
		return TransferRefused, err
	}
	return TransferAck, nil
}

// transferOut() moves assets through the ledger, mapping an explicit refusal to a
// transfer failure while accepting a missing signal as success
func (s *StateMachine) transferOut(asset uint64, from, to []byte, amount *uint256.Int) lib.ErrorI {
	outcome, err := s.assets.Transfer(asset, from, to, amount)
	if err != nil {
		return err
	}
	if outcome == TransferRefused {
		return ErrTransferFailed()
	}
	return nil
}

// transferIn() moves assets from a caller into the module, where a refusal
// means the sender could not cover the amount
func (s *StateMachine) transferIn(asset uint64, from, to []byte, amount *uint256.Int) lib.ErrorI {
	outcome, err := s.assets.Transfer(asset, from, to, amount)
	if err != nil {
		return err
	}
	if outcome == TransferRefused {
		return ErrInsufficientFunds()
	}
	return nil
}

// Accounts implements the Pageable interface for paged account queries
type Accounts []*Account

func (a *Accounts) Len() int          { return len(*a) }
func (a *Accounts) New() lib.Pageable { return &Accounts{} }

// MarshalBinary() encodes the account in proto wire format
func (x *Account) MarshalBinary() ([]byte, error) {
	var b []byte
	if len(x.Address) != 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Address)
	}
	if x.Asset != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, x.Asset)
	}
	if bz := lib.AmountToBytes(x.Amount); bz != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	return b, nil
}

// UnmarshalBinary() decodes the account from proto wire format
func (x *Account) UnmarshalBinary(data []byte) error {
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
			x.Asset, data = v, data[m:]
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

// accountJSON represents the JSON structure for Account marshalling/unmarshalling
type accountJSON struct {
	Address lib.HexBytes `json:"address"`
	Asset   uint64       `json:"asset"`
	Amount  string       `json:"amount"`
}

// MarshalJSON() implements the json.Marshaler interface for Account
func (x Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountJSON{Address: x.Address, Asset: x.Asset, Amount: lib.AmountToString(x.Amount)})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for Account
func (x *Account) UnmarshalJSON(data []byte) (err error) {
	j := new(accountJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	amount, err := amountFromJSON(j.Amount)
	if err != nil {
		return
	}
	*x = Account{Address: j.Address, Asset: j.Asset, Amount: amount}
	return
}
