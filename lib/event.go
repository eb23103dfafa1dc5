package lib

import (
	"encoding/json"

	"github.com/holiman/uint256"
	"google.golang.org/protobuf/encoding/protowire"
)

type EventType string

const (
	EventStageGenesis = "genesis"
	EventStageEndTick = "end_tick"

	EventTypePoolCreate  EventType = "pool-create"
	EventTypeReserveSync EventType = "reserve-sync"
	EventTypeDeposit     EventType = "liquidity-deposit"
	EventTypeWithdraw    EventType = "liquidity-withdraw"
	EventTypeSwap        EventType = "swap"
	EventTypeFeeShare    EventType = "fee-share"
	EventTypeSkim        EventType = "skim"
)

// EventsPageName is the registered page type for event queries
const EventsPageName = "events"

func init() {
	RegisteredPageables[EventsPageName] = new(Events)
}

// Event is a typed record of a single pool state transition, indexed under tick.index
type Event struct {
	EventType   EventType    // the kind of state transition
	Tick        uint32       // tick at which the event was recorded
	Index       uint64       // order of occurrence within the tick
	PoolAddress HexBytes     // address of the pool that produced the event
	Caller      HexBytes     // address that drove the operation
	InputAsset  uint64       // asset paid in; swap events only
	AmountA     *uint256.Int // first amount; meaning depends on the event type
	AmountB     *uint256.Int // second amount
	Liquidity   *uint256.Int // claim tokens minted or burned
	Recipient   HexBytes     // receiver for fee-share and skim events
	Reference   string       // envelope hash or stage that produced the event
}

type EventsTracker struct {
	Reference string // the envelope hash / stage reference for recorded events
	Events    Events // the actual events
}

// Add() adds an event to the tracker
func (t *EventsTracker) Add(event *Event) (e ErrorI) {
	if t == nil {
		return ErrEmptyEventsTracker()
	}
	event.Reference = t.Reference
	t.Events = append(t.Events, event)
	return
}

// Refer() sets a reference string for the event tracker
func (t *EventsTracker) Refer(s string) {
	if t == nil {
		return
	}
	t.Reference = s
}

// GetReference() is an accessor for the reference string
func (t *EventsTracker) GetReference() string {
	if t == nil {
		return ""
	}
	return t.Reference
}

// Reset() resets the event tracker and returns the captured events
func (t *EventsTracker) Reset() (e Events) {
	if t == nil {
		return
	}
	// save
	e = t.Events
	// reset
	t.Events, t.Reference = nil, ""
	// exit
	return
}

type Events []*Event

func (e *Events) Len() int      { return len(*e) }
func (e *Events) New() Pageable { return &Events{} }

// MarshalBinary() encodes the event in proto wire format
func (e *Event) MarshalBinary() ([]byte, error) {
	var b []byte
	if e.EventType != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, string(e.EventType))
	}
	if e.Tick != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Tick))
	}
	if e.Index != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Index)
	}
	if len(e.PoolAddress) != 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, e.PoolAddress)
	}
	if len(e.Caller) != 0 {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Caller)
	}
	if e.InputAsset != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, e.InputAsset)
	}
	if bz := AmountToBytes(e.AmountA); bz != nil {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := AmountToBytes(e.AmountB); bz != nil {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if bz := AmountToBytes(e.Liquidity); bz != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, bz)
	}
	if len(e.Recipient) != 0 {
		b = protowire.AppendTag(b, 10, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Recipient)
	}
	if e.Reference != "" {
		b = protowire.AppendTag(b, 11, protowire.BytesType)
		b = protowire.AppendString(b, e.Reference)
	}
	return b, nil
}

// UnmarshalBinary() decodes the event from proto wire format
func (e *Event) UnmarshalBinary(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.EventType, data = EventType(v), data[m:]
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.Tick, data = uint32(v), data[m:]
		case num == 3 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.Index, data = v, data[m:]
		case num == 4 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.PoolAddress, data = append(HexBytes(nil), v...), data[m:]
		case num == 5 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.Caller, data = append(HexBytes(nil), v...), data[m:]
		case num == 6 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.InputAsset, data = v, data[m:]
		case num == 7 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := AmountFromBytes(v)
			if err != nil {
				return err
			}
			e.AmountA, data = a, data[m:]
		case num == 8 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := AmountFromBytes(v)
			if err != nil {
				return err
			}
			e.AmountB, data = a, data[m:]
		case num == 9 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			a, err := AmountFromBytes(v)
			if err != nil {
				return err
			}
			e.Liquidity, data = a, data[m:]
		case num == 10 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.Recipient, data = append(HexBytes(nil), v...), data[m:]
		case num == 11 && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			e.Reference, data = v, data[m:]
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

// eventJSON represents the JSON structure for Event marshalling/unmarshalling
type eventJSON struct {
	EventType   EventType `json:"eventType"`
	Tick        uint32    `json:"tick"`
	Index       uint64    `json:"index"`
	PoolAddress HexBytes  `json:"poolAddress,omitempty"`
	Caller      HexBytes  `json:"caller,omitempty"`
	InputAsset  uint64    `json:"inputAsset,omitempty"`
	AmountA     string    `json:"amountA,omitempty"`
	AmountB     string    `json:"amountB,omitempty"`
	Liquidity   string    `json:"liquidity,omitempty"`
	Recipient   HexBytes  `json:"recipient,omitempty"`
	Reference   string    `json:"reference,omitempty"`
}

// MarshalJSON() implements custom JSON marshalling for Event, converting amounts to base-10 strings
func (e *Event) MarshalJSON() ([]byte, error) {
	if e == nil {
		return json.Marshal(nil)
	}
	temp := eventJSON{
		EventType:   e.EventType,
		Tick:        e.Tick,
		Index:       e.Index,
		PoolAddress: e.PoolAddress,
		Caller:      e.Caller,
		InputAsset:  e.InputAsset,
		Recipient:   e.Recipient,
		Reference:   e.Reference,
	}
	if e.AmountA != nil {
		temp.AmountA = AmountToString(e.AmountA)
	}
	if e.AmountB != nil {
		temp.AmountB = AmountToString(e.AmountB)
	}
	if e.Liquidity != nil {
		temp.Liquidity = AmountToString(e.Liquidity)
	}
	return json.Marshal(temp)
}

// UnmarshalJSON() implements custom JSON unmarshalling for Event, parsing base-10 amount strings
func (e *Event) UnmarshalJSON(data []byte) error {
	var temp eventJSON
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	*e = Event{
		EventType:   temp.EventType,
		Tick:        temp.Tick,
		Index:       temp.Index,
		PoolAddress: temp.PoolAddress,
		Caller:      temp.Caller,
		InputAsset:  temp.InputAsset,
		Recipient:   temp.Recipient,
		Reference:   temp.Reference,
	}
	for _, pair := range []struct {
		src string
		dst **uint256.Int
	}{{temp.AmountA, &e.AmountA}, {temp.AmountB, &e.AmountB}, {temp.Liquidity, &e.Liquidity}} {
		if pair.src == "" {
			continue
		}
		a, err := AmountFromString(pair.src)
		if err != nil {
			return err
		}
		*pair.dst = a
	}
	return nil
}
