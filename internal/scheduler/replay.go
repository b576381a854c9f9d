/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/request"
	"github.com/friendsincode/skuld/internal/telemetry"
)

// ReplayEvent is one entry of the externally persisted event log. The
// registry, the known-requests set, and the discovery index are all
// derivable by applying a log in order; nothing else is durable state.
type ReplayEvent struct {
	Kind      request.TransitionKind
	RequestID uuid.UUID
	Caller    chain.Address
	At        uint64

	// Creation fields.
	Owner        chain.Address
	FeeRecipient chain.Address
	Target       chain.Address
	Params       request.ScheduleParameters
	CallData     []byte
	Endowment    uint64

	// Transition fields.
	Collateral uint64
	Modifier   uint64
	CallOK     bool
	GasUsed    uint64
	Refund     uint64
}

// Apply replays one recorded event into the facade. Events must be
// applied in their original order; recorded outcomes are applied as data
// and nothing is re-validated or re-dispatched.
func (s *Service) Apply(evt ReplayEvent) error {
	switch evt.Kind {
	case request.TransitionCreated:
		call := request.NewScheduledCall(evt.RequestID, evt.Owner, evt.Caller, evt.FeeRecipient, evt.Target, evt.Params, evt.CallData, evt.Endowment, s.clock, s.dispatcher)
		bucket := DiscoveryBucket(evt.Params.TemporalUnit, evt.Params.WindowStart)
		s.mu.Lock()
		if _, exists := s.known[evt.RequestID]; exists {
			s.mu.Unlock()
			return fmt.Errorf("replay: duplicate creation for %s", evt.RequestID)
		}
		s.known[evt.RequestID] = call
		s.idx.Insert(bucket, evt.RequestID)
		size := s.idx.Len()
		s.mu.Unlock()
		telemetry.IndexSize.Set(float64(size))
		return nil

	case request.TransitionClaimed:
		call, err := s.lookup(evt.RequestID)
		if err != nil {
			return fmt.Errorf("replay: claim for unknown request %s", evt.RequestID)
		}
		call.RestoreClaim(evt.Caller, evt.Collateral, evt.Modifier, evt.At)
		return nil

	case request.TransitionExecuted:
		call, err := s.lookup(evt.RequestID)
		if err != nil {
			return fmt.Errorf("replay: execution for unknown request %s", evt.RequestID)
		}
		call.RestoreExecution(evt.Caller, evt.CallOK, evt.GasUsed, evt.At)
		s.unindex(evt.RequestID, call.Params())
		return nil

	case request.TransitionCancelled:
		call, err := s.lookup(evt.RequestID)
		if err != nil {
			return fmt.Errorf("replay: cancellation for unknown request %s", evt.RequestID)
		}
		call.RestoreCancel(evt.Caller, evt.Refund, evt.At)
		s.unindex(evt.RequestID, call.Params())
		return nil

	default:
		return fmt.Errorf("replay: unknown event kind %q", evt.Kind)
	}
}

// Known returns the number of requests the facade has ever accepted.
func (s *Service) Known() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.known)
}

// Indexed returns the number of entries currently discoverable.
func (s *Service) Indexed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Len()
}
