package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/posfleet-core/internal/fleet"
	"github.com/nerrad567/posfleet-core/internal/schema"
	"github.com/nerrad567/posfleet-core/internal/store"
)

// healthTimeout bounds each dependency check made by GET /health.
const healthTimeout = 3 * time.Second

// handleHealth reports the server version, the storage backend and the
// state of each optional dependency. Any failing check makes it 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	run := func(name string, check func(context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	run("database", s.fleet.HealthCheck)
	for name, check := range s.checks {
		run(name, check)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"version":  s.version,
		"backend":  s.fleet.Backend(),
		"checks":   checks,
		"sessions": s.hub.SessionCount(),
	})
}

// handleSummary returns the dashboard headline figures.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.fleet.Summary(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// statusRequest is the body of PATCH /pos-devices/{id}/status.
type statusRequest struct {
	Status fleet.DeviceStatus `json:"status"`
}

// handleSetDeviceStatus changes a terminal's status through the watched
// device patch so the change is broadcast. The response has the same shape
// as GET /pos-devices/{id}.
func (s *Server) handleSetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !req.Status.Writable() {
		s.writeServiceError(w, r, fmt.Errorf("%w: %q", fleet.ErrInvalidStatus, req.Status))
		return
	}
	s.patchAndRender(w, r, schema.PosDevices, map[string]any{"status": string(req.Status)})
}

// handleMarkAlertRead marks one alert read.
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	s.patchAndRender(w, r, schema.Alerts, map[string]any{"is_read": true})
}

// patchAndRender applies patch to the {id} row of entity and writes the
// stored row as the generic CRUD routes do.
func (s *Server) patchAndRender(w http.ResponseWriter, r *http.Request, entity string, patch map[string]any) {
	e, _ := schema.Lookup(entity)
	row, err := s.fleet.Patch(r.Context(), entity, chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(e, row))
}

// handleMarkAllAlertsRead marks every unread alert read.
func (s *Server) handleMarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.fleet.MarkAllAlertsRead(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

// defaultUnreadLimit is used by GET /alerts/unread without ?limit.
const defaultUnreadLimit = 50

// handleUnreadAlerts lists unread alerts, newest first.
func (s *Server) handleUnreadAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultUnreadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPageSize)
	}
	rows, err := s.fleet.List(r.Context(), schema.Alerts, store.Filter{
		Where: map[string]any{"is_read": false},
		Limit: limit,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	e, _ := schema.Lookup(schema.Alerts)
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = toJSON(e, row)
	}
	writeJSON(w, http.StatusOK, out)
}

// extraRoutes are the non-CRUD routes mounted under an entity prefix.
func (s *Server) extraRoutes(entity string) []func(chi.Router) {
	switch entity {
	case schema.PosDevices:
		return []func(chi.Router){func(r chi.Router) {
			r.Patch("/{id}/status", s.handleSetDeviceStatus)
		}}
	case schema.Alerts:
		return []func(chi.Router){func(r chi.Router) {
			r.Get("/unread", s.handleUnreadAlerts)
			r.Post("/read-all", s.handleMarkAllAlertsRead)
			r.Patch("/{id}/read", s.handleMarkAlertRead)
		}}
	}
	return nil
}
