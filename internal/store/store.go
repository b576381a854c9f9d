/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists scheduled calls and their event log through
// gorm and rebuilds facade state by replaying the log in order.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/models"
	"github.com/friendsincode/skuld/internal/request"
	"github.com/friendsincode/skuld/internal/scheduler"
)

// Store is the gorm-backed persistence layer.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store and migrates its tables.
func New(db *gorm.DB, logger zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(
		&models.CallRecord{},
		&models.TransitionEvent{},
		&models.RejectionRecord{},
		&models.AuditEntry{},
		&models.APIKey{},
	); err != nil {
		return nil, fmt.Errorf("migrate scheduler tables: %w", err)
	}
	return &Store{db: db, logger: logger.With().Str("component", "store").Logger()}, nil
}

// SaveCreated writes the initial call record and its creation log entry.
func (s *Store) SaveCreated(ctx context.Context, snap request.Snapshot, bucket int64) error {
	record := recordFromSnapshot(snap, bucket)
	evt := models.TransitionEvent{
		RequestID:    snap.ID.String(),
		Kind:         string(request.TransitionCreated),
		Caller:       string(snap.Meta.Creator),
		At:           snap.Trail[0].At,
		Owner:        string(snap.Meta.Owner),
		FeeRecipient: string(snap.Payment.FeeRecipient),
		Target:       string(snap.TxData.Target),
		Payload:      snap.TxData.Payload,
		Endowment:    snap.Payment.Endowment,

		FeeAmount:               snap.Params.FeeAmount,
		BountyAmount:            snap.Params.BountyAmount,
		ClaimWindowSize:         snap.Params.ClaimWindowSize,
		FreezePeriod:            snap.Params.FreezePeriod,
		ReservedClaimWindowSize: snap.Params.ReservedClaimWindowSize,
		TemporalUnit:            uint8(snap.Params.TemporalUnit),
		ExecutionWindowSize:     snap.Params.ExecutionWindowSize,
		WindowStart:             snap.Params.WindowStart,
		CallGasLimit:            snap.Params.CallGasLimit,
		CallValue:               snap.Params.CallValue,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("insert call record: %w", err)
		}
		if err := tx.Create(&evt).Error; err != nil {
			return fmt.Errorf("append creation event: %w", err)
		}
		return nil
	})
}

// SaveTransition appends a transition to the log and refreshes the call
// record from the snapshot.
func (s *Store) SaveTransition(ctx context.Context, snap request.Snapshot, rec request.TransitionRecord) error {
	record := recordFromSnapshot(snap, snapBucket(snap))
	evt := models.TransitionEvent{
		RequestID:  snap.ID.String(),
		Kind:       string(rec.Kind),
		Caller:     string(rec.Caller),
		At:         rec.At,
		Collateral: rec.Collateral,
		Modifier:   rec.Modifier,
		CallOK:     rec.CallOK,
		GasUsed:    rec.GasUsed,
		Refund:     rec.Refund,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("update call record: %w", err)
		}
		if err := tx.Create(&evt).Error; err != nil {
			return fmt.Errorf("append transition event: %w", err)
		}
		return nil
	})
}

// SaveRejection records a failed scheduling attempt.
func (s *Store) SaveRejection(ctx context.Context, requester chain.Address, reason string, vector [6]bool) error {
	bits := make([]byte, 6)
	for i, ok := range vector {
		if ok {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
	rec := models.RejectionRecord{
		Requester:   string(requester),
		ReasonCode:  reason,
		CheckVector: string(bits),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert rejection record: %w", err)
	}
	return nil
}

// Replay streams the event log in append order into the facade and
// returns the number of events applied.
func (s *Store) Replay(ctx context.Context, svc *scheduler.Service) (int, error) {
	var rows []models.TransitionEvent
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("load event log: %w", err)
	}
	for i, row := range rows {
		evt, err := replayEvent(row)
		if err != nil {
			return i, err
		}
		if err := svc.Apply(evt); err != nil {
			return i, fmt.Errorf("apply event seq=%d: %w", row.Seq, err)
		}
	}
	s.logger.Info().Int("events", len(rows)).Msg("event log replayed")
	return len(rows), nil
}

func replayEvent(row models.TransitionEvent) (scheduler.ReplayEvent, error) {
	id, err := uuid.Parse(row.RequestID)
	if err != nil {
		return scheduler.ReplayEvent{}, fmt.Errorf("event seq=%d: bad request id %q", row.Seq, row.RequestID)
	}
	return scheduler.ReplayEvent{
		Kind:         request.TransitionKind(row.Kind),
		RequestID:    id,
		Caller:       chain.Address(row.Caller),
		At:           row.At,
		Owner:        chain.Address(row.Owner),
		FeeRecipient: chain.Address(row.FeeRecipient),
		Target:       chain.Address(row.Target),
		CallData:     row.Payload,
		Endowment:    row.Endowment,
		Params: request.ScheduleParameters{
			FeeAmount:               row.FeeAmount,
			BountyAmount:            row.BountyAmount,
			ClaimWindowSize:         row.ClaimWindowSize,
			FreezePeriod:            row.FreezePeriod,
			ReservedClaimWindowSize: row.ReservedClaimWindowSize,
			TemporalUnit:            chain.TemporalUnit(row.TemporalUnit),
			ExecutionWindowSize:     row.ExecutionWindowSize,
			WindowStart:             row.WindowStart,
			CallGasLimit:            row.CallGasLimit,
			CallValue:               row.CallValue,
		},
		Collateral: row.Collateral,
		Modifier:   row.Modifier,
		CallOK:     row.CallOK,
		GasUsed:    row.GasUsed,
		Refund:     row.Refund,
	}, nil
}

func snapBucket(snap request.Snapshot) int64 {
	return scheduler.DiscoveryBucket(snap.Params.TemporalUnit, snap.Params.WindowStart)
}

func recordFromSnapshot(snap request.Snapshot, bucket int64) models.CallRecord {
	return models.CallRecord{
		ID:            snap.ID.String(),
		Owner:         string(snap.Meta.Owner),
		Creator:       string(snap.Meta.Creator),
		Cancelled:     snap.Meta.Cancelled,
		WasCalled:     snap.Meta.WasCalled,
		WasSuccessful: snap.Meta.WasSuccessful,

		FeeAmount:               snap.Params.FeeAmount,
		BountyAmount:            snap.Params.BountyAmount,
		ClaimWindowSize:         snap.Params.ClaimWindowSize,
		FreezePeriod:            snap.Params.FreezePeriod,
		ReservedClaimWindowSize: snap.Params.ReservedClaimWindowSize,
		TemporalUnit:            uint8(snap.Params.TemporalUnit),
		ExecutionWindowSize:     snap.Params.ExecutionWindowSize,
		WindowStart:             snap.Params.WindowStart,
		CallGasLimit:            snap.Params.CallGasLimit,
		CallValue:               snap.Params.CallValue,

		Claimant:        string(snap.Claim.Claimant),
		Collateral:      snap.Claim.Collateral,
		PaymentModifier: snap.Claim.PaymentModifier,

		Endowment:        snap.Payment.Endowment,
		FeeRecipient:     string(snap.Payment.FeeRecipient),
		FeeOwed:          snap.Payment.FeeOwed,
		BountyBenefactor: string(snap.Payment.BountyBenefactor),
		BountyOwed:       snap.Payment.BountyOwed,
		GasUsed:          snap.Payment.GasUsed,

		Target:   string(snap.TxData.Target),
		Payload:  snap.TxData.Payload,
		Value:    snap.TxData.Value,
		GasLimit: snap.TxData.GasLimit,

		DiscoveryBucket: bucket,
		Status:          string(snap.Status),
	}
}
