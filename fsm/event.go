package fsm

import (
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
)

// EventPoolCreate() adds a pool registration event
func (s *StateMachine) EventPoolCreate(pool *Pool, caller []byte) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypePoolCreate,
		PoolAddress: pool.Address,
		Caller:      caller,
	})
}

// EventReserveSync() adds a reserve commit event carrying the newly committed balances
func (s *StateMachine) EventReserveSync(pool *Pool) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypeReserveSync,
		PoolAddress: pool.Address,
		AmountA:     lib.CloneAmount(pool.ReserveA),
		AmountB:     lib.CloneAmount(pool.ReserveB),
	})
}

// EventDeposit() adds a liquidity deposit event
func (s *StateMachine) EventDeposit(pool *Pool, caller []byte, amountA, amountB, liquidity *uint256.Int) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypeDeposit,
		PoolAddress: pool.Address,
		Caller:      caller,
		AmountA:     lib.CloneAmount(amountA),
		AmountB:     lib.CloneAmount(amountB),
		Liquidity:   lib.CloneAmount(liquidity),
	})
}

// EventWithdraw() adds a liquidity withdrawal event
func (s *StateMachine) EventWithdraw(pool *Pool, caller []byte, amountA, amountB, liquidity *uint256.Int) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypeWithdraw,
		PoolAddress: pool.Address,
		Caller:      caller,
		AmountA:     lib.CloneAmount(amountA),
		AmountB:     lib.CloneAmount(amountB),
		Liquidity:   lib.CloneAmount(liquidity),
	})
}

// EventSwap() adds a swap event; AmountA carries the measured input and AmountB the output
func (s *StateMachine) EventSwap(pool *Pool, caller []byte, inputAsset uint64, inputAmount, outputAmount *uint256.Int) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypeSwap,
		PoolAddress: pool.Address,
		Caller:      caller,
		InputAsset:  inputAsset,
		AmountA:     lib.CloneAmount(inputAmount),
		AmountB:     lib.CloneAmount(outputAmount),
	})
}

// EventFeeShare() adds a protocol fee share minting event
func (s *StateMachine) EventFeeShare(pool *Pool, recipient []byte, liquidity *uint256.Int) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypeFeeShare,
		PoolAddress: pool.Address,
		Recipient:   recipient,
		Liquidity:   lib.CloneAmount(liquidity),
	})
}

// EventSkim() adds an excess balance skim event
func (s *StateMachine) EventSkim(pool *Pool, caller, recipient []byte, amountA, amountB *uint256.Int) lib.ErrorI {
	return s.events.Add(&lib.Event{
		EventType:   lib.EventTypeSkim,
		PoolAddress: pool.Address,
		Caller:      caller,
		Recipient:   recipient,
		AmountA:     lib.CloneAmount(amountA),
		AmountB:     lib.CloneAmount(amountB),
	})
}
