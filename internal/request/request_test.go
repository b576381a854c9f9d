/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package request

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/economics"
)

type fakeDispatcher struct {
	ok      bool
	gasUsed uint64
	calls   int
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ chain.Address, _ []byte, _, _ uint64) (bool, uint64) {
	d.calls++
	return d.ok, d.gasUsed
}

const (
	owner    = chain.Address("owner")
	claimant = chain.Address("claimant")
	stranger = chain.Address("stranger")
	target   = chain.Address("target")
)

func testParams() ScheduleParameters {
	return ScheduleParameters{
		FeeAmount:               100,
		BountyAmount:            200,
		ClaimWindowSize:         255,
		FreezePeriod:            10,
		ReservedClaimWindowSize: 16,
		TemporalUnit:            chain.UnitBlockCount,
		ExecutionWindowSize:     511,
		WindowStart:             1000,
		CallGasLimit:            500_000,
		CallValue:               0,
	}
}

func newCall(t *testing.T, clock chain.Clock, disp chain.Dispatcher) *ScheduledCall {
	t.Helper()
	params := testParams()
	endowment := economics.MinimumEndowment(params.FeeAmount, params.BountyAmount, clock.GasPrice())
	return NewScheduledCall(uuid.New(), owner, owner, owner, target, params, []byte{0x01, 0x02}, endowment, clock, disp)
}

func minCollateral(clock chain.Clock) uint64 {
	p := testParams()
	return economics.MinimumCollateral(p.FeeAmount, p.BountyAmount, clock.GasPrice())
}

func TestNewCallStartsUnclaimedWithNothingOwed(t *testing.T) {
	clock := chain.NewManualClock(100, 100, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})

	snap := call.Snapshot()
	if snap.Status != StatusUnclaimed {
		t.Fatalf("status = %s, want unclaimed", snap.Status)
	}
	if !snap.Claim.Claimant.IsNull() {
		t.Fatalf("claimant = %q, want null", snap.Claim.Claimant)
	}
	if snap.Payment.FeeOwed != 0 || snap.Payment.BountyOwed != 0 {
		t.Fatalf("owed fee=%d bounty=%d, want zero", snap.Payment.FeeOwed, snap.Payment.BountyOwed)
	}
	if len(snap.Trail) != 1 || snap.Trail[0].Kind != TransitionCreated {
		t.Fatalf("trail = %+v, want single created record", snap.Trail)
	}
}

func TestClaimInsideWindowLocksModifier(t *testing.T) {
	clock := chain.NewManualClock(745, 745, 1) // claim window opens at 1000-255=745
	call := newCall(t, clock, &fakeDispatcher{ok: true})

	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim at window open: %v", err)
	}
	snap := call.Snapshot()
	if snap.Status != StatusClaimed {
		t.Fatalf("status = %s, want claimed", snap.Status)
	}
	if snap.Claim.PaymentModifier != economics.PaymentModifierFloor {
		t.Fatalf("modifier at window open = %d, want floor %d", snap.Claim.PaymentModifier, economics.PaymentModifierFloor)
	}
	if snap.Payment.BountyBenefactor != claimant {
		t.Fatalf("benefactor = %q, want claimant", snap.Payment.BountyBenefactor)
	}
}

func TestClaimWindowBoundaries(t *testing.T) {
	disp := &fakeDispatcher{ok: true}

	clock := chain.NewManualClock(744, 744, 1)
	call := newCall(t, clock, disp)
	if err := call.Claim(claimant, minCollateral(clock)); !errors.Is(err, ErrOutsideClaimWindow) {
		t.Fatalf("claim before window open: %v, want ErrOutsideClaimWindow", err)
	}

	// Freeze period: claim window closes at 1000-10=990.
	clock = chain.NewManualClock(990, 990, 1)
	call = newCall(t, clock, disp)
	if err := call.Claim(claimant, minCollateral(clock)); !errors.Is(err, ErrOutsideClaimWindow) {
		t.Fatalf("claim inside freeze period: %v, want ErrOutsideClaimWindow", err)
	}

	clock = chain.NewManualClock(989, 989, 1)
	call = newCall(t, clock, disp)
	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim at last eligible point: %v", err)
	}
	if mod := call.Snapshot().Claim.PaymentModifier; mod != 100 {
		t.Fatalf("modifier at window close = %d, want 100", mod)
	}
}

func TestClaimRejectsInsufficientCollateral(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Claim(claimant, minCollateral(clock)-1); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("claim with short collateral: %v, want ErrInsufficientCollateral", err)
	}
}

func TestClaimCollateralGateAtWeiScale(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	params := testParams()
	// 10 ETH in wei. The doubled payment term saturates, so only a
	// maximal deposit clears the gate; the pre-saturation wrapped value
	// must not.
	params.FeeAmount = 10_000_000_000_000_000_000
	call := NewScheduledCall(uuid.New(), owner, owner, owner, target, params, nil, math.MaxUint64, clock, &fakeDispatcher{ok: true})

	wrapped := 2*(params.FeeAmount+params.BountyAmount) + 200_000*clock.GasPrice()
	if wrapped >= params.FeeAmount {
		t.Fatalf("test premise broken: %d did not wrap", wrapped)
	}
	if err := call.Claim(claimant, wrapped); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("claim with wrapped collateral: %v, want ErrInsufficientCollateral", err)
	}
	if err := call.Claim(claimant, math.MaxUint64); err != nil {
		t.Fatalf("claim with saturated collateral: %v", err)
	}
}

func TestExecutionWindowEndClampsAtCeiling(t *testing.T) {
	params := testParams()
	params.WindowStart = math.MaxUint64 - 10
	params.ExecutionWindowSize = 511
	if got := params.ExecutionWindowEnd(); got != math.MaxUint64 {
		t.Fatalf("execution window end = %d, want clamped MaxUint64", got)
	}
}

func TestClaimIsExclusiveUnderConcurrency(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	collateral := minCollateral(clock)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = call.Claim(chain.Address(uuid.NewString()), collateral)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d claims succeeded, want exactly 1", won)
	}
}

func TestExecuteByClaimantInReservedWindow(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	disp := &fakeDispatcher{ok: true, gasUsed: 42_000}
	call := newCall(t, clock, disp)
	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	clock.Advance(205) // now 1005, inside reserved [1000, 1016)
	if err := call.Execute(context.Background(), stranger); !errors.Is(err, ErrReservedWindow) {
		t.Fatalf("stranger in reserved window: %v, want ErrReservedWindow", err)
	}
	if err := call.Execute(context.Background(), claimant); err != nil {
		t.Fatalf("claimant execute: %v", err)
	}

	snap := call.Snapshot()
	if snap.Status != StatusExecuted || !snap.Meta.WasSuccessful {
		t.Fatalf("snapshot after execute = %+v", snap.Meta)
	}
	if snap.Payment.FeeOwed != snap.Payment.FeeAmount {
		t.Fatalf("fee owed = %d, want full fee %d", snap.Payment.FeeOwed, snap.Payment.FeeAmount)
	}
	wantBounty := snap.Claim.Collateral + snap.Payment.BountyAmount*snap.Claim.PaymentModifier/100
	if snap.Payment.BountyOwed != wantBounty {
		t.Fatalf("bounty owed = %d, want %d", snap.Payment.BountyOwed, wantBounty)
	}
	if snap.Payment.GasUsed != 42_000 {
		t.Fatalf("gas used = %d, want 42000", snap.Payment.GasUsed)
	}
}

func TestExecuteOpensToAnyoneAfterReservedWindow(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	clock.Advance(220) // now 1020, past reserved window end 1016
	if err := call.Execute(context.Background(), stranger); err != nil {
		t.Fatalf("stranger after reserved window: %v", err)
	}
	// The claimant still collects the modifier-scaled bounty.
	snap := call.Snapshot()
	if snap.Payment.BountyBenefactor != claimant {
		t.Fatalf("benefactor = %q, want claimant", snap.Payment.BountyBenefactor)
	}
}

func TestExecuteUnclaimedPaysExecutorFullBounty(t *testing.T) {
	clock := chain.NewManualClock(1100, 1100, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Execute(context.Background(), stranger); err != nil {
		t.Fatalf("execute unclaimed: %v", err)
	}
	snap := call.Snapshot()
	if snap.Payment.BountyBenefactor != stranger || snap.Payment.BountyOwed != snap.Payment.BountyAmount {
		t.Fatalf("unclaimed payout = %+v, want full bounty to executor", snap.Payment)
	}
}

func TestExecuteWindowViolations(t *testing.T) {
	clock := chain.NewManualClock(999, 999, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Execute(context.Background(), stranger); !errors.Is(err, ErrOutsideExecutionWindow) {
		t.Fatalf("execute before window: %v, want ErrOutsideExecutionWindow", err)
	}

	clock = chain.NewManualClock(1511, 1511, 1) // window ends at 1000+511
	call = newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Execute(context.Background(), stranger); !errors.Is(err, ErrOutsideExecutionWindow) {
		t.Fatalf("execute after window: %v, want ErrOutsideExecutionWindow", err)
	}
}

func TestExecuteTwiceIsAStateConflict(t *testing.T) {
	clock := chain.NewManualClock(1100, 1100, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Execute(context.Background(), stranger); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	err := call.Execute(context.Background(), stranger)
	if !errors.Is(err, ErrAlreadyCalled) {
		t.Fatalf("second execute: %v, want ErrAlreadyCalled", err)
	}
	if Classify(err) != ClassStateConflict {
		t.Fatalf("classify(%v) = %s, want state_conflict", err, Classify(err))
	}
}

func TestFailedTargetCallStillCompletesTransition(t *testing.T) {
	clock := chain.NewManualClock(1100, 1100, 1)
	disp := &fakeDispatcher{ok: false, gasUsed: 500_000}
	call := newCall(t, clock, disp)

	if err := call.Execute(context.Background(), stranger); err != nil {
		t.Fatalf("execute with failing target: %v", err)
	}
	snap := call.Snapshot()
	if snap.Status != StatusExecuted {
		t.Fatalf("status = %s, want executed", snap.Status)
	}
	if snap.Meta.WasSuccessful {
		t.Fatal("target failure not recorded")
	}
	if snap.Payment.FeeOwed != snap.Payment.FeeAmount {
		t.Fatal("fee must be owed in full even when the target call fails")
	}
}

func TestCancelBeforeClaimRefundsEndowment(t *testing.T) {
	clock := chain.NewManualClock(500, 500, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})

	endowment := call.Snapshot().Payment.Endowment
	refund, err := call.Cancel(owner)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund != endowment {
		t.Fatalf("refund = %d, want escrowed endowment %d", refund, endowment)
	}
	if call.Status() != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", call.Status())
	}
}

func TestCancelBlockedOnceClaimed(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := call.Cancel(owner); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("cancel after claim: %v, want ErrAlreadyClaimed", err)
	}
}

func TestCancelRequiresOwner(t *testing.T) {
	clock := chain.NewManualClock(500, 500, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if _, err := call.Cancel(stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cancel by stranger: %v, want ErrUnauthorized", err)
	}
}

func TestCancelBlockedOnceExecutionWindowOpens(t *testing.T) {
	clock := chain.NewManualClock(1000, 1000, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	_, err := call.Cancel(owner)
	if !errors.Is(err, ErrExecutionWindowOpen) {
		t.Fatalf("cancel inside execution window: %v, want ErrExecutionWindowOpen", err)
	}
	if Classify(err) != ClassWindowViolation {
		t.Fatalf("classify(%v) = %s, want window_violation", err, Classify(err))
	}
}

func TestAbandonedClaimedCallStaysClaimed(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true})
	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	clock.Advance(10_000) // far past the execution window
	if err := call.Execute(context.Background(), claimant); !errors.Is(err, ErrOutsideExecutionWindow) {
		t.Fatalf("execute after window: %v, want ErrOutsideExecutionWindow", err)
	}
	if call.Status() != StatusClaimed {
		t.Fatalf("abandoned call status = %s, want claimed", call.Status())
	}
	// Collateral stays locked; nothing reaps abandoned state.
	if _, err := call.Cancel(owner); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("cancel of abandoned call: %v, want ErrAlreadyClaimed", err)
	}
}

func TestReplayRestoresIdenticalState(t *testing.T) {
	clock := chain.NewManualClock(800, 800, 1)
	call := newCall(t, clock, &fakeDispatcher{ok: true, gasUsed: 30_000})
	if err := call.Claim(claimant, minCollateral(clock)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	clock.Advance(205)
	if err := call.Execute(context.Background(), claimant); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := call.Snapshot()

	replayClock := chain.NewManualClock(800, 800, 1)
	restored := NewScheduledCall(want.ID, owner, owner, owner, target, testParams(), []byte{0x01, 0x02}, want.Payment.Endowment, replayClock, &fakeDispatcher{})
	for _, rec := range want.Trail[1:] {
		switch rec.Kind {
		case TransitionClaimed:
			restored.RestoreClaim(rec.Caller, rec.Collateral, rec.Modifier, rec.At)
		case TransitionExecuted:
			restored.RestoreExecution(rec.Caller, rec.CallOK, rec.GasUsed, rec.At)
		case TransitionCancelled:
			restored.RestoreCancel(rec.Caller, rec.Refund, rec.At)
		}
	}

	got := restored.Snapshot()
	if got.Status != want.Status || got.Claim != want.Claim || got.Payment != want.Payment || got.Meta != want.Meta {
		t.Fatalf("replayed state diverged:\n got %+v\nwant %+v", got, want)
	}
}
