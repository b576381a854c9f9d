/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package economics holds the pure pricing arithmetic of the scheduler:
// collateral floors, the claim-window payment modifier curve, and the
// grace-period bound. Nothing here carries state. All floors are
// computed with saturating arithmetic: wei-scale fees are legal inputs,
// and a wrapped floor would silently admit underfunded requests.
package economics

import (
	"math"
	"math/bits"
)

// SaturatingAdd returns a+b, clamped to MaxUint64 on overflow.
func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// SaturatingMul returns a*b, clamped to MaxUint64 on overflow.
func SaturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// Gas accounting constants. MinimumCallGas is the stipend a claimer must
// be able to cover on top of fee and bounty; NetworkGasCeiling is the hard
// upper bound a single scheduled call may request.
const (
	MinimumCallGas    uint64 = 200_000
	NetworkGasCeiling uint64 = 3_141_592
)

// CallWindowSize is the indexing granularity for scheduled calls measured
// in the request's temporal unit. Grace periods must stay generous
// relative to it so coarse bucketing cannot swallow a window.
const CallWindowSize uint64 = 16

// PaymentModifierFloor is the percentage paid to a claim placed at the
// very opening of the claim window. Early claimants carry more
// execution-timing risk, so the curve rises toward 100 at window close.
const PaymentModifierFloor uint64 = 50

// MinimumCollateral returns the smallest acceptable claim deposit for a
// request paying basePayment in fees and baseDonation in bounty at the
// given base gas price.
func MinimumCollateral(basePayment, baseDonation, gasPrice uint64) uint64 {
	payments := SaturatingMul(2, SaturatingAdd(baseDonation, basePayment))
	return SaturatingAdd(payments, SaturatingMul(MinimumCallGas, gasPrice))
}

// MinimumEndowment returns the funds that must be escrowed at creation:
// twice fee plus bounty, plus the minimum execution cost at the given gas
// price. It is the same floor the validator applies to check zero.
func MinimumEndowment(fee, bounty, gasPrice uint64) uint64 {
	payments := SaturatingMul(2, SaturatingAdd(fee, bounty))
	return SaturatingAdd(payments, SaturatingMul(MinimumCallGas, gasPrice))
}

// PaymentModifier returns the bounty percentage (0-100) locked in for a
// claim placed elapsed units into a claim window of the given size. The
// curve is linear from PaymentModifierFloor at window open to 100 at
// window close, and is clamped at both ends.
func PaymentModifier(elapsed, claimWindowSize uint64) uint64 {
	if claimWindowSize == 0 || elapsed >= claimWindowSize {
		return 100
	}
	// span*elapsed is widened to 128 bits; elapsed < claimWindowSize keeps
	// the quotient under span, so the division cannot overflow either.
	span := 100 - PaymentModifierFloor
	hi, lo := bits.Mul64(span, elapsed)
	q, _ := bits.Div64(hi, lo, claimWindowSize)
	return PaymentModifierFloor + q
}

// MinimumGracePeriod returns the smallest permitted gap between claim
// freeze and execution, twice the call window so index coarseness cannot
// cause a missed window.
func MinimumGracePeriod() uint64 {
	return 2 * CallWindowSize
}
