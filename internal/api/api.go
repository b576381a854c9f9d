/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the scheduling engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld/internal/audit"
	"github.com/friendsincode/skuld/internal/auth"
	"github.com/friendsincode/skuld/internal/cache"
	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/request"
	"github.com/friendsincode/skuld/internal/scheduler"
	"github.com/friendsincode/skuld/internal/scheduling"
	"github.com/friendsincode/skuld/internal/version"
	"github.com/friendsincode/skuld/internal/webhooks"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	jwtSecret  []byte
	scheduler  *scheduler.Service
	cache      *cache.Cache
	auditSvc   *audit.Service
	webhookSvc *webhooks.Service
	bus        *events.Bus
	clock      chain.Clock
	logger     zerolog.Logger
}

// New creates the API router wrapper. cache, auditSvc, and webhookSvc
// may be nil.
func New(db *gorm.DB, jwtSecret []byte, sched *scheduler.Service, snapCache *cache.Cache, auditSvc *audit.Service, webhookSvc *webhooks.Service, bus *events.Bus, clock chain.Clock, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		jwtSecret:  jwtSecret,
		scheduler:  sched,
		cache:      snapCache,
		auditSvc:   auditSvc,
		webhookSvc: webhookSvc,
		bus:        bus,
		clock:      clock,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Token exchange authenticates by API key itself
		r.Post("/auth/token", a.handleAuthToken)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/requests", func(r chi.Router) {
				r.Post("/", a.handleRequestCreate)
				r.Route("/{requestID}", func(r chi.Router) {
					r.Get("/", a.handleRequestGet)
					r.Post("/claim", a.handleRequestClaim)
					r.Post("/execute", a.handleRequestExecute)
					r.Post("/cancel", a.handleRequestCancel)
				})
			})

			pr.Get("/window", a.handleWindow)
			pr.Get("/audit", a.handleAuditList)

			pr.Route("/keys", func(r chi.Router) {
				r.Get("/", a.handleKeysList)
				r.Post("/", a.handleKeysCreate)
				r.Delete("/{keyID}", a.handleKeysRevoke)
			})

			pr.Route("/webhooks", func(r chi.Router) {
				r.Get("/", a.handleWebhooksList)
				r.Post("/", a.handleWebhooksCreate)
				r.Delete("/{webhookID}", a.handleWebhooksDelete)
				r.Post("/{webhookID}/test", a.handleWebhooksTest)
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      version.Version,
		"block":        a.clock.Now(chain.UnitBlockCount),
		"timestamp":    a.clock.Now(chain.UnitTimestamp),
		"gas_price":    a.clock.GasPrice(),
		"known":        a.scheduler.Known(),
		"discoverable": a.scheduler.Indexed(),
	})
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "api_key_required")
		return
	}
	claims, err := auth.ValidateAPIKey(a.db, apiKey)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_api_key")
		return
	}

	token, err := auth.Issue(a.jwtSecret, *claims, time.Hour)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "token_issue_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(time.Hour.Seconds()),
	})
}

// transitionError maps facade errors onto HTTP statuses. The full
// diagnostic vector rides along on validation failures so a rejected
// proposal is debuggable from the response alone.
func (a *API) transitionError(w http.ResponseWriter, err error) {
	var verr *scheduler.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":         "validation_failed",
			"check_vector":  verr.Vector.Vector(),
			"failed_checks": verr.Vector.FailedChecks(),
		})
		return
	}
	if errors.Is(err, scheduler.ErrUnknownRequest) {
		writeError(w, http.StatusNotFound, "unknown_request")
		return
	}

	switch request.Classify(err) {
	case request.ClassStateConflict:
		writeError(w, http.StatusConflict, err.Error())
	case request.ClassWindowViolation:
		writeError(w, http.StatusConflict, err.Error())
	case request.ClassUnauthorized:
		writeError(w, http.StatusForbidden, err.Error())
	case request.ClassInsufficientCollateral:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.Error().Err(err).Msg("transition failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (a *API) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_id")
		return uuid.Nil, false
	}
	return id, true
}

type createRequestBody struct {
	Owner        string                     `json:"owner"`
	FeeRecipient string                     `json:"fee_recipient"`
	Target       string                     `json:"target"`
	Params       request.ScheduleParameters `json:"params"`
	CallData     []byte                     `json:"call_data"`
	Endowment    uint64                     `json:"endowment"`
}

func (a *API) handleRequestCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if body.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner_required")
		return
	}

	snap, err := a.scheduler.CreateRequest(r.Context(), scheduling.Proposal{
		Owner:        chain.Address(body.Owner),
		FeeRecipient: chain.Address(body.FeeRecipient),
		Target:       chain.Address(body.Target),
		Params:       body.Params,
		CallData:     body.CallData,
		Endowment:    body.Endowment,
	})
	if err != nil {
		a.transitionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) handleRequestGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}

	if a.cache != nil {
		if snap, hit := a.cache.GetRequest(r.Context(), id); hit {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	snap, err := a.scheduler.Get(id)
	if err != nil {
		a.transitionError(w, err)
		return
	}
	if a.cache != nil {
		a.cache.SetRequest(r.Context(), snap)
	}
	writeJSON(w, http.StatusOK, snap)
}

type claimBody struct {
	Caller     string `json:"caller"`
	Collateral uint64 `json:"collateral"`
}

func (a *API) handleRequestClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}
	var body claimBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if body.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller_required")
		return
	}

	snap, err := a.scheduler.Claim(r.Context(), id, chain.Address(body.Caller), body.Collateral)
	if err != nil {
		a.transitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type callerBody struct {
	Caller string `json:"caller"`
}

func (a *API) handleRequestExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}
	var body callerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if body.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller_required")
		return
	}

	snap, err := a.scheduler.Execute(r.Context(), id, chain.Address(body.Caller))
	if err != nil {
		a.transitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleRequestCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}
	var body callerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if body.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller_required")
		return
	}

	snap, err := a.scheduler.Cancel(r.Context(), id, chain.Address(body.Caller))
	if err != nil {
		a.transitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
