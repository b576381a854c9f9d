/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/skuld/internal/audit"
	"github.com/friendsincode/skuld/internal/chain"
)

// handleWindow serves the discovery query: requests due in the bucket
// around ?at, plus the nearest indexed neighbors. Defaults to the
// current block height when ?at is omitted.
func (a *API) handleWindow(w http.ResponseWriter, r *http.Request) {
	unit := chain.UnitBlockCount
	if raw := r.URL.Query().Get("unit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 8)
		if err != nil || !chain.TemporalUnit(parsed).Valid() {
			writeError(w, http.StatusBadRequest, "invalid_temporal_unit")
			return
		}
		unit = chain.TemporalUnit(parsed)
	}

	at := a.clock.Now(unit)
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_at")
			return
		}
		at = parsed
	}

	writeJSON(w, http.StatusOK, a.scheduler.DueAround(unit, at))
}

// handleAuditList serves the persisted audit trail, newest first.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.auditSvc == nil {
		writeError(w, http.StatusNotImplemented, "audit_disabled")
		return
	}

	filters := audit.QueryFilters{Limit: 100}
	q := r.URL.Query()
	if v := q.Get("request_id"); v != "" {
		filters.RequestID = &v
	}
	if v := q.Get("event_type"); v != "" {
		filters.EventType = &v
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		filters.StartTime = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		filters.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset")
			return
		}
		filters.Offset = offset
	}

	entries, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}
