/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks pushes lifecycle events to registered HTTP
// endpoints. Deliveries are signed with HMAC-SHA256 when the target
// carries a secret, and every attempt is logged.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/models"
)

// DeliveryPayload is the body sent to webhook endpoints.
type DeliveryPayload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	Detail    events.Payload `json:"detail,omitempty"`
}

// Service handles webhook delivery.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// NewService creates a new webhook service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start consumes the event stream until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("webhook service starting")

	tap := s.bus.Tap()
	defer s.bus.Untap(tap)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case evt, ok := <-tap:
			if !ok {
				return
			}
			s.fire(ctx, evt)
		}
	}
}

// fire fans the event out to every active target subscribed to it.
func (s *Service) fire(ctx context.Context, evt events.Event) {
	var targets []models.WebhookTarget
	if err := s.db.Where("active = ?", true).Find(&targets).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch webhook targets")
		return
	}

	for _, target := range targets {
		if !s.targetHandlesEvent(target, string(evt.Type)) {
			continue
		}
		go s.send(ctx, target, evt)
	}
}

// targetHandlesEvent checks the target's event filter. An empty filter
// matches every event.
func (s *Service) targetHandlesEvent(target models.WebhookTarget, eventType string) bool {
	if target.Events == "" {
		return true
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// send delivers one event to one target.
func (s *Service) send(ctx context.Context, target models.WebhookTarget, evt events.Event) {
	payload := DeliveryPayload{
		Event:     string(evt.Type),
		Timestamp: evt.At,
		Detail:    evt.Payload,
	}
	if evt.RequestID != uuid.Nil {
		payload.RequestID = evt.RequestID.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to create webhook request")
		s.logDelivery(target, evt, http.StatusInternalServerError, err.Error())
		return
	}

	s.setHeaders(req, string(evt.Type), body, target.Secret)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
		s.logDelivery(target, evt, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	s.logDelivery(target, evt, resp.StatusCode, "")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug().Str("webhook", target.ID).Str("event", string(evt.Type)).Int("status", resp.StatusCode).Msg("webhook delivered")
	} else {
		s.logger.Warn().Str("webhook", target.ID).Str("event", string(evt.Type)).Int("status", resp.StatusCode).Msg("webhook returned error status")
	}
}

func (s *Service) setHeaders(req *http.Request, eventType string, body []byte, secret string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Skuld-Webhook/1.0")
	req.Header.Set("X-Skuld-Event", eventType)
	req.Header.Set("X-Skuld-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if secret != "" {
		req.Header.Set("X-Skuld-Signature", s.signPayload(body, secret))
	}
}

// signPayload creates an HMAC-SHA256 signature.
func (s *Service) signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// logDelivery records a delivery attempt.
func (s *Service) logDelivery(target models.WebhookTarget, evt events.Event, statusCode int, errorMsg string) {
	entry := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      string(evt.Type),
		StatusCode: statusCode,
		Error:      errorMsg,
	}
	if evt.RequestID != uuid.Nil {
		entry.RequestID = evt.RequestID.String()
	}

	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

// TestTarget sends a synthetic delivery to verify an endpoint.
func (s *Service) TestTarget(target *models.WebhookTarget) error {
	payload := DeliveryPayload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		Detail:    events.Payload{"note": "test delivery"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	s.setHeaders(req, "test", body, target.Secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
