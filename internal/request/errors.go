/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package request

import "errors"

// Transition failures. Every error is scoped to the single call the
// transition was attempted on; there is no global failure state.
var (
	ErrAlreadyClaimed         = errors.New("request already claimed")
	ErrAlreadyCalled          = errors.New("request already executed")
	ErrAlreadyCancelled       = errors.New("request already cancelled")
	ErrInsufficientCollateral = errors.New("claim collateral below minimum")
	ErrOutsideClaimWindow     = errors.New("outside claim window")
	ErrOutsideExecutionWindow = errors.New("outside execution window")
	ErrReservedWindow         = errors.New("reserved window belongs to claimant")
	ErrExecutionWindowOpen    = errors.New("execution window already open")
	ErrUnauthorized           = errors.New("caller is not the owner")
)

// ErrorClass groups transition errors for callers that react to the
// category rather than the specific failure.
type ErrorClass string

const (
	ClassStateConflict          ErrorClass = "state_conflict"
	ClassWindowViolation        ErrorClass = "window_violation"
	ClassUnauthorized           ErrorClass = "unauthorized"
	ClassInsufficientCollateral ErrorClass = "insufficient_collateral"
	ClassUnknown                ErrorClass = "unknown"
)

// Classify maps a transition error to its class.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrAlreadyCalled), errors.Is(err, ErrAlreadyCancelled):
		return ClassStateConflict
	case errors.Is(err, ErrOutsideClaimWindow), errors.Is(err, ErrOutsideExecutionWindow),
		errors.Is(err, ErrReservedWindow), errors.Is(err, ErrExecutionWindowOpen):
		return ClassWindowViolation
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	case errors.Is(err, ErrInsufficientCollateral):
		return ClassInsufficientCollateral
	default:
		return ClassUnknown
	}
}
