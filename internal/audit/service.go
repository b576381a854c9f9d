/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists a human-auditable trail of scheduler events.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/models"
)

// Service subscribes to the event bus and stores audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start taps the full event stream and logs every event as an audit
// entry until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	tap := s.bus.Tap()
	defer s.bus.Untap(tap)
	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case evt, ok := <-tap:
			if !ok {
				return
			}
			s.logEvent(ctx, evt)
		}
	}
}

func (s *Service) logEvent(ctx context.Context, evt events.Event) {
	detail, err := json.Marshal(evt.Payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(evt.Type)).Msg("failed to encode audit detail")
		detail = []byte("{}")
	}

	requestID := ""
	if evt.RequestID != uuid.Nil {
		requestID = evt.RequestID.String()
	}

	entry := models.AuditEntry{
		EventType: string(evt.Type),
		RequestID: requestID,
		Detail:    string(detail),
		CreatedAt: evt.At,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error().Err(err).Str("type", string(evt.Type)).Msg("failed to log audit entry")
		return
	}

	s.logger.Debug().
		Str("type", string(evt.Type)).
		Str("request_id", requestID).
		Msg("audit entry logged")
}

// QueryFilters defines filters for querying audit entries.
type QueryFilters struct {
	RequestID *string
	EventType *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit entries with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditEntry, int64, error) {
	var entries []models.AuditEntry
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditEntry{})

	if filters.RequestID != nil {
		query = query.Where("request_id = ?", *filters.RequestID)
	}
	if filters.EventType != nil {
		query = query.Where("event_type = ?", *filters.EventType)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
