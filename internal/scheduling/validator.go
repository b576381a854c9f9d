/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling validates proposed call requests before the facade
// accepts them. The validator is stateless: every check runs against the
// proposal and the chain collaborators, and all six results are returned
// together so automated schedulers can see every problem in one pass.
package scheduling

import (
	"github.com/rs/zerolog"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/economics"
	"github.com/friendsincode/skuld/internal/request"
)

// Proposal is a scheduling request as submitted, before any state exists.
type Proposal struct {
	Owner        chain.Address              `json:"owner"`
	FeeRecipient chain.Address              `json:"fee_recipient"`
	Target       chain.Address              `json:"target"`
	Params       request.ScheduleParameters `json:"params"`
	CallData     []byte                     `json:"call_data"`
	Endowment    uint64                     `json:"endowment"`
}

// CheckVector carries the result of each validation check in its fixed
// position. All six booleans are populated on every run; there is no
// short-circuiting.
type CheckVector struct {
	SufficientEndowment     bool `json:"sufficient_endowment"`
	ReserveWithinWindow     bool `json:"reserve_within_window"`
	ValidTemporalUnit       bool `json:"valid_temporal_unit"`
	WindowStartClearsFreeze bool `json:"window_start_clears_freeze"`
	GasWithinCeiling        bool `json:"gas_within_ceiling"`
	TargetSet               bool `json:"target_set"`
}

// Vector returns the checks as a fixed-length boolean vector in check
// order.
func (v CheckVector) Vector() [6]bool {
	return [6]bool{
		v.SufficientEndowment,
		v.ReserveWithinWindow,
		v.ValidTemporalUnit,
		v.WindowStartClearsFreeze,
		v.GasWithinCeiling,
		v.TargetSet,
	}
}

// Passed reports whether every check passed.
func (v CheckVector) Passed() bool {
	for _, ok := range v.Vector() {
		if !ok {
			return false
		}
	}
	return true
}

// checkNames indexes the machine-readable reason codes by check position.
var checkNames = [6]string{
	"insufficient_endowment",
	"reserve_exceeds_execution_window",
	"invalid_temporal_unit",
	"window_start_in_freeze",
	"gas_exceeds_ceiling",
	"null_target",
}

// FailedChecks returns the reason codes of every failed check, in check
// order.
func (v CheckVector) FailedChecks() []string {
	var failed []string
	for i, ok := range v.Vector() {
		if !ok {
			failed = append(failed, checkNames[i])
		}
	}
	return failed
}

// Validator runs the fixed battery of scheduling checks.
type Validator struct {
	clock               chain.Clock
	gasCeiling          uint64
	confirmationLatency uint64
	logger              zerolog.Logger
}

// NewValidator creates a validator bound to the given clock. gasCeiling is
// the hard network limit for a single call; confirmationLatency widens the
// freeze-period check so a claimer cannot be front-run out of the freeze
// by in-flight confirmations.
func NewValidator(clock chain.Clock, gasCeiling, confirmationLatency uint64, logger zerolog.Logger) *Validator {
	if gasCeiling == 0 {
		gasCeiling = economics.NetworkGasCeiling
	}
	return &Validator{
		clock:               clock,
		gasCeiling:          gasCeiling,
		confirmationLatency: confirmationLatency,
		logger:              logger.With().Str("component", "validator").Logger(),
	}
}

// Validate runs all six checks against the proposal and returns the full
// vector. Checks are independent; a failure in one never suppresses the
// others.
func (v *Validator) Validate(p Proposal) CheckVector {
	params := p.Params
	var result CheckVector

	// Check 0: endowment covers twice fee plus bounty plus minimum call
	// gas at the current base price.
	result.SufficientEndowment = p.Endowment >= economics.MinimumEndowment(params.FeeAmount, params.BountyAmount, v.clock.GasPrice())

	// Check 1: the claimant's exclusive reserve fits inside the execution
	// window.
	result.ReserveWithinWindow = params.ReservedClaimWindowSize <= params.ExecutionWindowSize

	// Check 2: temporal unit must be one of the two supported encodings.
	result.ValidTemporalUnit = params.TemporalUnit.Valid()

	// Check 3: the window must start past the freeze period measured from
	// now in the chosen unit. An invalid unit fails this check too, since
	// "now" cannot be read in a unit that does not exist.
	if result.ValidTemporalUnit {
		now := v.clock.Now(params.TemporalUnit)
		earliest := economics.SaturatingAdd(now, economics.SaturatingAdd(params.FreezePeriod, v.confirmationLatency))
		result.WindowStartClearsFreeze = params.WindowStart >= earliest
	}

	// Check 4: requested call gas stays under the network ceiling.
	result.GasWithinCeiling = params.CallGasLimit <= v.gasCeiling

	// Check 5: a call must have somewhere to go.
	result.TargetSet = !p.Target.IsNull()

	if !result.Passed() {
		v.logger.Debug().
			Strs("failed_checks", result.FailedChecks()).
			Str("owner", string(p.Owner)).
			Msg("proposal rejected")
	}
	return result
}
