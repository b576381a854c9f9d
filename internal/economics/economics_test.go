/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package economics

import (
	"math"
	"testing"
)

func TestMinimumCollateralCoversPaymentsAndGas(t *testing.T) {
	got := MinimumCollateral(100, 50, 2)
	want := 2*(50+100) + MinimumCallGas*2
	if got != want {
		t.Fatalf("minimum collateral = %d, want %d", got, want)
	}
}

func TestMinimumEndowmentMatchesCollateralFormula(t *testing.T) {
	if MinimumEndowment(100, 50, 2) != MinimumCollateral(100, 50, 2) {
		t.Fatal("endowment floor and collateral floor diverged")
	}
}

func TestPaymentModifierBounds(t *testing.T) {
	if got := PaymentModifier(0, 255); got != PaymentModifierFloor {
		t.Fatalf("modifier at window open = %d, want floor %d", got, PaymentModifierFloor)
	}
	if got := PaymentModifier(255, 255); got != 100 {
		t.Fatalf("modifier at window close = %d, want 100", got)
	}
	if got := PaymentModifier(400, 255); got != 100 {
		t.Fatalf("modifier past window close = %d, want 100", got)
	}
	if got := PaymentModifier(10, 0); got != 100 {
		t.Fatalf("modifier with zero window = %d, want 100", got)
	}
}

func TestPaymentModifierMonotonicNonDecreasing(t *testing.T) {
	const window = 255
	prev := uint64(0)
	for elapsed := uint64(0); elapsed <= window; elapsed++ {
		mod := PaymentModifier(elapsed, window)
		if mod < prev {
			t.Fatalf("modifier decreased at elapsed=%d: %d < %d", elapsed, mod, prev)
		}
		if mod > 100 {
			t.Fatalf("modifier exceeded 100 at elapsed=%d: %d", elapsed, mod)
		}
		prev = mod
	}
}

func TestFloorsSaturateAtWeiScale(t *testing.T) {
	// 10 ETH in wei. Doubling it exceeds uint64; the floor must clamp,
	// never wrap below the fee itself.
	const fee = uint64(10_000_000_000_000_000_000)
	if got := MinimumEndowment(fee, 0, 1); got != math.MaxUint64 {
		t.Fatalf("endowment floor = %d, want saturated MaxUint64", got)
	}
	if got := MinimumEndowment(fee, 0, 1); got < fee {
		t.Fatalf("endowment floor %d wrapped below fee %d", got, fee)
	}
	if got := MinimumCollateral(fee, fee, 0); got != math.MaxUint64 {
		t.Fatalf("collateral floor = %d, want saturated MaxUint64", got)
	}
	// The gas term saturates independently of the payment term.
	if got := MinimumCollateral(0, 0, math.MaxUint64); got != math.MaxUint64 {
		t.Fatalf("gas-term floor = %d, want saturated MaxUint64", got)
	}
}

func TestFloorsExactJustBelowSaturation(t *testing.T) {
	// 2*(2^63-1) is the largest doubled payment that still fits.
	const fee = uint64(1)<<63 - 1
	want := uint64(math.MaxUint64 - 1)
	if got := MinimumEndowment(fee, 0, 0); got != want {
		t.Fatalf("endowment floor = %d, want %d", got, want)
	}
	if got := MinimumEndowment(fee+1, 0, 0); got != math.MaxUint64 {
		t.Fatalf("endowment floor at 2^63 = %d, want saturated MaxUint64", got)
	}
}

func TestPaymentModifierBoundedForHugeWindows(t *testing.T) {
	const window = uint64(math.MaxUint64)
	if got := PaymentModifier(0, window); got != PaymentModifierFloor {
		t.Fatalf("modifier at open of huge window = %d, want floor", got)
	}
	got := PaymentModifier(window-1, window)
	if got < PaymentModifierFloor || got > 100 {
		t.Fatalf("modifier near close of huge window = %d, out of [floor,100]", got)
	}
	mid := PaymentModifier(window/2, window)
	if mid < PaymentModifierFloor || mid > 100 {
		t.Fatalf("modifier at midpoint of huge window = %d, out of [floor,100]", mid)
	}
}

func TestMinimumGracePeriodIsTwiceCallWindow(t *testing.T) {
	if MinimumGracePeriod() != 2*CallWindowSize {
		t.Fatalf("grace period = %d, want %d", MinimumGracePeriod(), 2*CallWindowSize)
	}
}
