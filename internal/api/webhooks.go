/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/models"
)

type webhookCreateRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events,omitempty"`
}

type webhookSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func webhookToSummary(t models.WebhookTarget) webhookSummary {
	s := webhookSummary{
		ID:        t.ID,
		Name:      t.Name,
		URL:       t.URL,
		Active:    t.Active,
		CreatedAt: t.CreatedAt,
	}
	if t.Events != "" {
		s.Events = strings.Split(t.Events, ",")
	}
	return s
}

func (a *API) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	var targets []models.WebhookTarget
	if err := a.db.Order("created_at DESC").Find(&targets).Error; err != nil {
		a.logger.Error().Err(err).Msg("webhook list failed")
		writeError(w, http.StatusInternalServerError, "webhook_list_failed")
		return
	}

	summaries := make([]webhookSummary, 0, len(targets))
	for _, t := range targets {
		summaries = append(summaries, webhookToSummary(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": summaries})
}

func (a *API) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	var body webhookCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if body.Name == "" || body.URL == "" {
		writeError(w, http.StatusBadRequest, "name_and_url_required")
		return
	}
	parsed, err := url.Parse(body.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "invalid_url")
		return
	}
	for _, evt := range body.Events {
		if !knownEventType(evt) {
			writeError(w, http.StatusBadRequest, "unknown_event_type")
			return
		}
	}

	target := models.WebhookTarget{
		ID:     uuid.NewString(),
		Name:   body.Name,
		URL:    body.URL,
		Secret: body.Secret,
		Events: strings.Join(body.Events, ","),
		Active: true,
	}
	if err := a.db.Create(&target).Error; err != nil {
		a.logger.Error().Err(err).Msg("webhook create failed")
		writeError(w, http.StatusInternalServerError, "webhook_create_failed")
		return
	}

	writeJSON(w, http.StatusCreated, webhookToSummary(target))
}

func (a *API) handleWebhooksDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "webhookID")
	result := a.db.Delete(&models.WebhookTarget{}, "id = ?", id)
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("webhook delete failed")
		writeError(w, http.StatusInternalServerError, "webhook_delete_failed")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWebhooksTest(w http.ResponseWriter, r *http.Request) {
	if a.webhookSvc == nil {
		writeError(w, http.StatusNotImplemented, "webhooks_disabled")
		return
	}

	id := chi.URLParam(r, "webhookID")
	var target models.WebhookTarget
	if err := a.db.First(&target, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "webhook_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("webhook lookup failed")
		writeError(w, http.StatusInternalServerError, "webhook_lookup_failed")
		return
	}

	if err := a.webhookSvc.TestTarget(&target); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "delivery_failed",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "delivered"})
}

func knownEventType(name string) bool {
	switch events.EventType(name) {
	case events.EventRequestCreated,
		events.EventRequestRejected,
		events.EventRequestClaimed,
		events.EventRequestExecuted,
		events.EventRequestCancelled:
		return true
	}
	return false
}
