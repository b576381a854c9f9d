/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package request owns the per-call lifecycle state machine. A scheduled
// call moves Unclaimed → Claimed → Executed on the happy path, Unclaimed →
// Cancelled when the owner backs out pre-claim, and a claimed call whose
// execution window closes untouched stays Claimed forever: abandonment is a
// sink, not an error.
package request

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/economics"
)

// Status is the externally visible lifecycle state of a scheduled call.
type Status string

const (
	StatusUnclaimed Status = "unclaimed"
	StatusClaimed   Status = "claimed"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
)

// ScheduleParameters are fixed at validation time and never mutate.
type ScheduleParameters struct {
	FeeAmount               uint64             `json:"fee_amount"`
	BountyAmount            uint64             `json:"bounty_amount"`
	ClaimWindowSize         uint64             `json:"claim_window_size"`
	FreezePeriod            uint64             `json:"freeze_period"`
	ReservedClaimWindowSize uint64             `json:"reserved_claim_window_size"`
	TemporalUnit            chain.TemporalUnit `json:"temporal_unit"`
	ExecutionWindowSize     uint64             `json:"execution_window_size"`
	WindowStart             uint64             `json:"window_start"`
	CallGasLimit            uint64             `json:"call_gas_limit"`
	CallValue               uint64             `json:"call_value"`
}

// ClaimWindowOpen returns the first point at which the call may be
// claimed.
func (p ScheduleParameters) ClaimWindowOpen() uint64 {
	if p.ClaimWindowSize > p.WindowStart {
		return 0
	}
	return p.WindowStart - p.ClaimWindowSize
}

// ClaimWindowClose returns the first point at which claiming is frozen.
func (p ScheduleParameters) ClaimWindowClose() uint64 {
	if p.FreezePeriod > p.WindowStart {
		return 0
	}
	return p.WindowStart - p.FreezePeriod
}

// ExecutionWindowEnd returns the first point past the execution window,
// clamped at the numeric ceiling so an extreme window never wraps shut.
func (p ScheduleParameters) ExecutionWindowEnd() uint64 {
	return economics.SaturatingAdd(p.WindowStart, p.ExecutionWindowSize)
}

// Vector flattens the parameters plus endowment and collateral floor into
// the fixed-width numeric form carried by creation events.
func (p ScheduleParameters) Vector(endowment, gasPrice uint64) [12]uint64 {
	return [12]uint64{
		p.FeeAmount,
		p.BountyAmount,
		p.ClaimWindowSize,
		p.FreezePeriod,
		p.ReservedClaimWindowSize,
		uint64(p.TemporalUnit),
		p.ExecutionWindowSize,
		p.WindowStart,
		p.CallGasLimit,
		p.CallValue,
		endowment,
		economics.MinimumCollateral(p.FeeAmount, p.BountyAmount, gasPrice),
	}
}

// Meta tracks ownership and terminal flags.
type Meta struct {
	Owner         chain.Address `json:"owner"`
	Creator       chain.Address `json:"creator"`
	Cancelled     bool          `json:"cancelled"`
	WasCalled     bool          `json:"was_called"`
	WasSuccessful bool          `json:"was_successful"`
}

// ClaimData records the winning claim. Claimant is null until a claim is
// accepted; PaymentModifier is locked at claim time and never recomputed.
type ClaimData struct {
	Claimant        chain.Address `json:"claimant"`
	Collateral      uint64        `json:"collateral"`
	PaymentModifier uint64        `json:"payment_modifier"`
}

// PaymentData tracks what is escrowed and what is owed after execution.
type PaymentData struct {
	Endowment        uint64        `json:"endowment"`
	FeeAmount        uint64        `json:"fee_amount"`
	FeeRecipient     chain.Address `json:"fee_recipient"`
	FeeOwed          uint64        `json:"fee_owed"`
	BountyAmount     uint64        `json:"bounty_amount"`
	BountyBenefactor chain.Address `json:"bounty_benefactor"`
	BountyOwed       uint64        `json:"bounty_owed"`
	GasUsed          uint64        `json:"gas_used"`
}

// TxData is the call to be dispatched.
type TxData struct {
	Target   chain.Address `json:"target"`
	Payload  []byte        `json:"payload"`
	Value    uint64        `json:"value"`
	GasLimit uint64        `json:"gas_limit"`
}

// TransitionKind names an audit trail entry.
type TransitionKind string

const (
	TransitionCreated   TransitionKind = "created"
	TransitionClaimed   TransitionKind = "claimed"
	TransitionExecuted  TransitionKind = "executed"
	TransitionCancelled TransitionKind = "cancelled"
)

// TransitionRecord is one entry of the per-call append-only audit trail.
// Replaying a call's trail in order reconstructs its state exactly.
type TransitionRecord struct {
	Seq        int            `json:"seq"`
	Kind       TransitionKind `json:"kind"`
	Caller     chain.Address  `json:"caller"`
	At         uint64         `json:"at"`
	Collateral uint64         `json:"collateral,omitempty"`
	Modifier   uint64         `json:"modifier,omitempty"`
	CallOK     bool           `json:"call_ok,omitempty"`
	GasUsed    uint64         `json:"gas_used,omitempty"`
	Refund     uint64         `json:"refund,omitempty"`
}

// ScheduledCall is the live entity behind one scheduled call. All
// transitions are serialized by an internal mutex: of concurrent Claim
// attempts exactly one succeeds and the rest observe ErrAlreadyClaimed.
type ScheduledCall struct {
	mu sync.Mutex

	id      uuid.UUID
	params  ScheduleParameters
	meta    Meta
	claim   ClaimData
	payment PaymentData
	txData  TxData
	trail   []TransitionRecord

	clock      chain.Clock
	dispatcher chain.Dispatcher
}

// NewScheduledCall allocates an Unclaimed call. Callers are expected to
// have run the validator battery first; this constructor does not
// re-validate.
func NewScheduledCall(id uuid.UUID, owner, creator, feeRecipient, target chain.Address, params ScheduleParameters, payload []byte, endowment uint64, clock chain.Clock, dispatcher chain.Dispatcher) *ScheduledCall {
	c := &ScheduledCall{
		id:     id,
		params: params,
		meta:   Meta{Owner: owner, Creator: creator},
		payment: PaymentData{
			Endowment:    endowment,
			FeeAmount:    params.FeeAmount,
			FeeRecipient: feeRecipient,
			BountyAmount: params.BountyAmount,
		},
		txData: TxData{
			Target:   target,
			Payload:  payload,
			Value:    params.CallValue,
			GasLimit: params.CallGasLimit,
		},
		clock:      clock,
		dispatcher: dispatcher,
	}
	c.trail = append(c.trail, TransitionRecord{
		Seq:    0,
		Kind:   TransitionCreated,
		Caller: creator,
		At:     clock.Now(params.TemporalUnit),
	})
	return c
}

// ID returns the request identifier.
func (c *ScheduledCall) ID() uuid.UUID {
	return c.id
}

// Params returns the immutable schedule parameters.
func (c *ScheduledCall) Params() ScheduleParameters {
	return c.params
}

// Status derives the lifecycle state from the terminal flags and claim
// data.
func (c *ScheduledCall) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *ScheduledCall) statusLocked() Status {
	switch {
	case c.meta.Cancelled:
		return StatusCancelled
	case c.meta.WasCalled:
		return StatusExecuted
	case !c.claim.Claimant.IsNull():
		return StatusClaimed
	default:
		return StatusUnclaimed
	}
}

// claimCurveSize is the effective length of the claim window's payout
// curve. The curve spans from window open to the last claimable point, so
// a claim placed right before the freeze locks the full 100%.
func (c *ScheduledCall) claimCurveSize() uint64 {
	if c.params.FreezePeriod+1 >= c.params.ClaimWindowSize {
		return 0
	}
	return c.params.ClaimWindowSize - c.params.FreezePeriod - 1
}

// Claim locks exclusive first-right execution for caller against the
// posted collateral. The payment modifier in force at the claim point is
// fixed for the life of the call.
func (c *ScheduledCall) Claim(caller chain.Address, collateral uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.statusLocked() {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusExecuted:
		return ErrAlreadyCalled
	case StatusClaimed:
		return ErrAlreadyClaimed
	}

	gasPrice := c.clock.GasPrice()
	if collateral < economics.MinimumCollateral(c.params.FeeAmount, c.params.BountyAmount, gasPrice) {
		return ErrInsufficientCollateral
	}

	now := c.clock.Now(c.params.TemporalUnit)
	open, frozen := c.params.ClaimWindowOpen(), c.params.ClaimWindowClose()
	if now < open || now >= frozen {
		return ErrOutsideClaimWindow
	}

	modifier := economics.PaymentModifier(now-open, c.claimCurveSize())
	c.applyClaim(caller, collateral, modifier, now)
	return nil
}

func (c *ScheduledCall) applyClaim(caller chain.Address, collateral, modifier, at uint64) {
	c.claim = ClaimData{Claimant: caller, Collateral: collateral, PaymentModifier: modifier}
	c.payment.BountyBenefactor = caller
	c.trail = append(c.trail, TransitionRecord{
		Seq:        len(c.trail),
		Kind:       TransitionClaimed,
		Caller:     caller,
		At:         at,
		Collateral: collateral,
		Modifier:   modifier,
	})
}

// Execute dispatches the scheduled call on behalf of caller. Structural
// preconditions (already called, window, reserved right) abort the
// transition; a failure of the dispatched target call does not — the
// transition completes and the outcome is recorded in the meta flags.
func (c *ScheduledCall) Execute(ctx context.Context, caller chain.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.meta.Cancelled {
		return ErrAlreadyCancelled
	}
	if c.meta.WasCalled {
		return ErrAlreadyCalled
	}

	now := c.clock.Now(c.params.TemporalUnit)
	if now < c.params.WindowStart || now >= c.params.ExecutionWindowEnd() {
		return ErrOutsideExecutionWindow
	}
	claimed := !c.claim.Claimant.IsNull()
	if claimed && caller != c.claim.Claimant && now < c.params.WindowStart+c.params.ReservedClaimWindowSize {
		return ErrReservedWindow
	}

	ok, gasUsed := c.dispatcher.Dispatch(ctx, c.txData.Target, c.txData.Payload, c.txData.Value, c.txData.GasLimit)
	c.applyExecution(caller, ok, gasUsed, now)
	return nil
}

// applyExecution settles payouts and marks the call executed. The fee
// always pays the fee recipient in full; the bounty goes to the claimant
// scaled by the locked modifier plus their collateral back, or unscaled to
// the executing caller when the call was never claimed.
func (c *ScheduledCall) applyExecution(caller chain.Address, ok bool, gasUsed, at uint64) {
	c.meta.WasCalled = true
	c.meta.WasSuccessful = ok
	c.payment.FeeOwed = c.payment.FeeAmount
	c.payment.GasUsed = gasUsed
	if !c.claim.Claimant.IsNull() {
		c.payment.BountyBenefactor = c.claim.Claimant
		c.payment.BountyOwed = c.claim.Collateral + c.payment.BountyAmount*c.claim.PaymentModifier/100
	} else {
		c.payment.BountyBenefactor = caller
		c.payment.BountyOwed = c.payment.BountyAmount
	}
	c.trail = append(c.trail, TransitionRecord{
		Seq:     len(c.trail),
		Kind:    TransitionExecuted,
		Caller:  caller,
		At:      at,
		CallOK:  ok,
		GasUsed: gasUsed,
	})
}

// Cancel voids an unclaimed call before its execution window opens and
// returns the escrowed endowment to refund to the owner. Cancellation is
// never permitted once a claimant has committed collateral.
func (c *ScheduledCall) Cancel(caller chain.Address) (refund uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.meta.Owner {
		return 0, ErrUnauthorized
	}
	switch c.statusLocked() {
	case StatusCancelled:
		return 0, ErrAlreadyCancelled
	case StatusExecuted:
		return 0, ErrAlreadyCalled
	case StatusClaimed:
		return 0, ErrAlreadyClaimed
	}
	now := c.clock.Now(c.params.TemporalUnit)
	if now >= c.params.WindowStart {
		return 0, ErrExecutionWindowOpen
	}

	refund = c.payment.Endowment
	c.applyCancel(caller, refund, now)
	return refund, nil
}

func (c *ScheduledCall) applyCancel(caller chain.Address, refund, at uint64) {
	c.meta.Cancelled = true
	c.payment.Endowment = 0
	c.trail = append(c.trail, TransitionRecord{
		Seq:    len(c.trail),
		Kind:   TransitionCancelled,
		Caller: caller,
		At:     at,
		Refund: refund,
	})
}

// RestoreClaim re-applies a recorded claim during event-log replay,
// bypassing the clock checks the original transition already passed.
func (c *ScheduledCall) RestoreClaim(claimant chain.Address, collateral, modifier, at uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyClaim(claimant, collateral, modifier, at)
}

// RestoreExecution re-applies a recorded execution during replay. The
// recorded dispatch outcome is applied as data; nothing is re-dispatched.
func (c *ScheduledCall) RestoreExecution(caller chain.Address, ok bool, gasUsed, at uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyExecution(caller, ok, gasUsed, at)
}

// RestoreCancel re-applies a recorded cancellation during replay.
func (c *ScheduledCall) RestoreCancel(caller chain.Address, refund, at uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyCancel(caller, refund, at)
}

// Snapshot is a consistent copy of a call's state for read surfaces.
type Snapshot struct {
	ID      uuid.UUID          `json:"id"`
	Status  Status             `json:"status"`
	Params  ScheduleParameters `json:"params"`
	Meta    Meta               `json:"meta"`
	Claim   ClaimData          `json:"claim"`
	Payment PaymentData        `json:"payment"`
	TxData  TxData             `json:"tx_data"`
	Trail   []TransitionRecord `json:"trail"`
}

// Snapshot copies the call state under the transition lock.
func (c *ScheduledCall) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	trail := make([]TransitionRecord, len(c.trail))
	copy(trail, c.trail)
	payload := make([]byte, len(c.txData.Payload))
	copy(payload, c.txData.Payload)
	tx := c.txData
	tx.Payload = payload
	return Snapshot{
		ID:      c.id,
		Status:  c.statusLocked(),
		Params:  c.params,
		Meta:    c.meta,
		Claim:   c.claim,
		Payment: c.payment,
		TxData:  tx,
		Trail:   trail,
	}
}
