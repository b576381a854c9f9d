/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler is the facade over the whole engine: it validates
// proposals, allocates scheduled calls, maintains the known-request
// registry and the ordered discovery index, and emits every externally
// observable event.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/index"
	"github.com/friendsincode/skuld/internal/request"
	"github.com/friendsincode/skuld/internal/scheduling"
	"github.com/friendsincode/skuld/internal/telemetry"
)

// Discovery bucket granularity per temporal unit. Block schedules bucket
// by 256-block ranges, timestamp schedules by hour.
const (
	BlockBucketSize     = 256
	TimestampBucketSize = 3600
)

// DiscoveryBucket quantizes a window start into the index sort key,
// trading key precision for amortized insert and lookup cost. Window
// starts past the signed key range collapse into the topmost bucket;
// a wrapped negative key would sort extreme schedule points first.
func DiscoveryBucket(unit chain.TemporalUnit, windowStart uint64) int64 {
	size := uint64(TimestampBucketSize)
	if unit == chain.UnitBlockCount {
		size = BlockBucketSize
	}
	if windowStart > math.MaxInt64 {
		windowStart = math.MaxInt64
	}
	return int64(windowStart - windowStart%size)
}

// ValidationError is returned when a proposal fails the check battery. It
// carries the full diagnostic vector; no state was created.
type ValidationError struct {
	Vector scheduling.CheckVector
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Vector.FailedChecks())
}

// ErrUnknownRequest is returned for operations against identifiers the
// facade never created.
var ErrUnknownRequest = fmt.Errorf("unknown request")

// Persister stores the durable record of calls, transitions, and
// rejections. The facade works without one; persistence failures are
// logged, never allowed to abort a completed state transition.
type Persister interface {
	SaveCreated(ctx context.Context, snap request.Snapshot, bucket int64) error
	SaveTransition(ctx context.Context, snap request.Snapshot, rec request.TransitionRecord) error
	SaveRejection(ctx context.Context, requester chain.Address, reason string, vector [6]bool) error
}

// Cacher mirrors call snapshots into a read cache.
type Cacher interface {
	SetRequest(ctx context.Context, snap request.Snapshot)
	InvalidateRequest(ctx context.Context, id uuid.UUID)
}

// Service is the scheduling facade.
type Service struct {
	validator  *scheduling.Validator
	clock      chain.Clock
	dispatcher chain.Dispatcher
	bus        *events.Bus
	persister  Persister
	cache      Cacher
	logger     zerolog.Logger

	mu    sync.RWMutex
	known map[uuid.UUID]*request.ScheduledCall
	idx   *index.Tree
}

// New constructs the facade. persister and cache may be nil.
func New(validator *scheduling.Validator, clock chain.Clock, dispatcher chain.Dispatcher, bus *events.Bus, persister Persister, cache Cacher, logger zerolog.Logger) *Service {
	return &Service{
		validator:  validator,
		clock:      clock,
		dispatcher: dispatcher,
		bus:        bus,
		persister:  persister,
		cache:      cache,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		known:      make(map[uuid.UUID]*request.ScheduledCall),
		idx:        index.New(),
	}
}

// CreateRequest validates the proposal and, on success, allocates an
// Unclaimed scheduled call, indexes it under its discovery bucket, and
// returns its snapshot so the caller can verify the echoed parameters. A
// failed battery returns *ValidationError with every diagnostic; no state
// is created and the escrowed endowment is returned to the requester.
func (s *Service) CreateRequest(ctx context.Context, p scheduling.Proposal) (request.Snapshot, error) {
	vector := s.validator.Validate(p)
	if !vector.Passed() {
		failed := vector.FailedChecks()
		for _, check := range failed {
			telemetry.RequestsRejectedTotal.WithLabelValues(check).Inc()
		}
		s.bus.Publish(events.EventRequestRejected, uuid.Nil, events.Payload{
			"requester":    string(p.Owner),
			"reason_code":  failed[0],
			"check_vector": vector.Vector(),
		})
		if s.persister != nil {
			if err := s.persister.SaveRejection(ctx, p.Owner, failed[0], vector.Vector()); err != nil {
				s.logger.Error().Err(err).Msg("persist rejection failed")
			}
		}
		return request.Snapshot{}, &ValidationError{Vector: vector}
	}

	id := uuid.New()
	call := request.NewScheduledCall(id, p.Owner, p.Owner, p.FeeRecipient, p.Target, p.Params, p.CallData, p.Endowment, s.clock, s.dispatcher)
	bucket := DiscoveryBucket(p.Params.TemporalUnit, p.Params.WindowStart)

	s.mu.Lock()
	s.known[id] = call
	s.idx.Insert(bucket, id)
	size := s.idx.Len()
	s.mu.Unlock()

	telemetry.RequestsCreatedTotal.Inc()
	telemetry.IndexSize.Set(float64(size))

	snap := call.Snapshot()
	vectorParams := p.Params.Vector(p.Endowment, s.clock.GasPrice())
	s.bus.Publish(events.EventRequestCreated, id, events.Payload{
		"identifier":       id.String(),
		"params_vector":    vectorParams,
		"discovery_bucket": bucket,
	})
	s.persist(ctx, func(per Persister) error { return per.SaveCreated(ctx, snap, bucket) })
	if s.cache != nil {
		s.cache.SetRequest(ctx, snap)
	}

	s.logger.Info().
		Str("request", id.String()).
		Uint64("window_start", p.Params.WindowStart).
		Int64("bucket", bucket).
		Msg("request created")
	return snap, nil
}

// IsKnownRequest reports whether id was returned by a successful
// CreateRequest. The nil identifier is never known.
func (s *Service) IsKnownRequest(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[id]
	return ok
}

// Get returns a snapshot of the identified call.
func (s *Service) Get(id uuid.UUID) (request.Snapshot, error) {
	call, err := s.lookup(id)
	if err != nil {
		return request.Snapshot{}, err
	}
	return call.Snapshot(), nil
}

// Claim locks execution rights on the identified call for caller.
func (s *Service) Claim(ctx context.Context, id uuid.UUID, caller chain.Address, collateral uint64) (request.Snapshot, error) {
	call, err := s.lookup(id)
	if err != nil {
		return request.Snapshot{}, err
	}
	if err := call.Claim(caller, collateral); err != nil {
		telemetry.ClaimsTotal.WithLabelValues(string(request.Classify(err))).Inc()
		return request.Snapshot{}, err
	}
	telemetry.ClaimsTotal.WithLabelValues("claimed").Inc()

	snap := call.Snapshot()
	rec := snap.Trail[len(snap.Trail)-1]
	s.bus.Publish(events.EventRequestClaimed, id, events.Payload{
		"claimant":   string(caller),
		"collateral": rec.Collateral,
		"modifier":   rec.Modifier,
	})
	s.persist(ctx, func(per Persister) error { return per.SaveTransition(ctx, snap, rec) })
	s.refreshCache(ctx, snap)
	return snap, nil
}

// Execute dispatches the identified call on behalf of caller. The call
// leaves the discovery index whether or not the target call succeeded;
// only structural precondition failures keep it discoverable.
func (s *Service) Execute(ctx context.Context, id uuid.UUID, caller chain.Address) (request.Snapshot, error) {
	call, err := s.lookup(id)
	if err != nil {
		return request.Snapshot{}, err
	}
	if err := call.Execute(ctx, caller); err != nil {
		telemetry.ExecutionsTotal.WithLabelValues(string(request.Classify(err))).Inc()
		return request.Snapshot{}, err
	}

	snap := call.Snapshot()
	outcome := "executed"
	if !snap.Meta.WasSuccessful {
		outcome = "executed_target_failed"
	}
	telemetry.ExecutionsTotal.WithLabelValues(outcome).Inc()

	s.unindex(id, snap.Params)
	rec := snap.Trail[len(snap.Trail)-1]
	s.bus.Publish(events.EventRequestExecuted, id, events.Payload{
		"caller":      string(caller),
		"success":     snap.Meta.WasSuccessful,
		"gas_used":    rec.GasUsed,
		"fee_owed":    snap.Payment.FeeOwed,
		"bounty_owed": snap.Payment.BountyOwed,
		"benefactor":  string(snap.Payment.BountyBenefactor),
	})
	s.persist(ctx, func(per Persister) error { return per.SaveTransition(ctx, snap, rec) })
	s.refreshCache(ctx, snap)
	return snap, nil
}

// Cancel voids the identified call and returns the refunded endowment.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, caller chain.Address) (request.Snapshot, error) {
	call, err := s.lookup(id)
	if err != nil {
		return request.Snapshot{}, err
	}
	refund, err := call.Cancel(caller)
	if err != nil {
		telemetry.CancellationsTotal.WithLabelValues(string(request.Classify(err))).Inc()
		return request.Snapshot{}, err
	}
	telemetry.CancellationsTotal.WithLabelValues("cancelled").Inc()

	snap := call.Snapshot()
	s.unindex(id, snap.Params)
	rec := snap.Trail[len(snap.Trail)-1]
	s.bus.Publish(events.EventRequestCancelled, id, events.Payload{
		"owner":  string(caller),
		"refund": refund,
	})
	s.persist(ctx, func(per Persister) error { return per.SaveTransition(ctx, snap, rec) })
	s.refreshCache(ctx, snap)
	return snap, nil
}

// Window is the discovery query result around a point in time.
type Window struct {
	Previous *index.Entry `json:"previous,omitempty"`
	Next     *index.Entry `json:"next,omitempty"`
	Due      []uuid.UUID  `json:"due,omitempty"`
}

// DueAround returns the requests bucketed exactly at the key plus the
// nearest neighbors on either side.
func (s *Service) DueAround(unit chain.TemporalUnit, at uint64) Window {
	key := DiscoveryBucket(unit, at)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w Window
	w.Due = s.idx.At(key)
	if prev, ok := s.idx.PreviousBefore(key); ok {
		w.Previous = &prev
	}
	if next, ok := s.idx.NextAfter(key); ok {
		w.Next = &next
	}
	return w
}

func (s *Service) lookup(id uuid.UUID) (*request.ScheduledCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.known[id]
	if !ok {
		return nil, ErrUnknownRequest
	}
	return call, nil
}

// unindex drops a terminal call from the discovery index. The registry
// entry stays: the known-requests set grows monotonically.
func (s *Service) unindex(id uuid.UUID, params request.ScheduleParameters) {
	bucket := DiscoveryBucket(params.TemporalUnit, params.WindowStart)
	s.mu.Lock()
	s.idx.Remove(bucket, id)
	size := s.idx.Len()
	s.mu.Unlock()
	telemetry.IndexSize.Set(float64(size))
}

func (s *Service) persist(ctx context.Context, fn func(Persister) error) {
	if s.persister == nil {
		return
	}
	if err := fn(s.persister); err != nil {
		s.logger.Error().Err(err).Msg("persistence write failed")
	}
}

func (s *Service) refreshCache(ctx context.Context, snap request.Snapshot) {
	if s.cache == nil {
		return
	}
	s.cache.SetRequest(ctx, snap)
}
