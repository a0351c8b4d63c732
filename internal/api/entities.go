package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/posfleet-core/internal/auth"
	"github.com/nerrad567/posfleet-core/internal/schema"
	"github.com/nerrad567/posfleet-core/internal/store"
)

// resource exposes one entity under /api/v1/{slug}.
type resource struct {
	slug   string
	entity *schema.Entity

	// perm, when set, guards every method instead of the per-method
	// fleet permissions.
	perm auth.Permission
}

// resourceSlugs maps URL path segments to table names.
var resourceSlugs = []struct {
	slug   string
	entity string
	perm   auth.Permission
}{
	{"users", schema.Users, auth.PermUserManage},
	{"branches", schema.Branches, ""},
	{"employees", schema.Employees, ""},
	{"banking-units", schema.BankingUnits, ""},
	{"customers", schema.Customers, ""},
	{"pos-devices", schema.PosDevices, ""},
	{"transactions", schema.Transactions, ""},
	{"alerts", schema.Alerts, ""},
	{"pos-monthly-stats", schema.PosMonthlyStats, ""},
	{"visits", schema.Visits, ""},
	{"territories", schema.Territories, ""},
}

func resources() []resource {
	out := make([]resource, 0, len(resourceSlugs))
	for _, r := range resourceSlugs {
		e, ok := schema.Lookup(r.entity)
		if !ok {
			panic("api: no schema entity " + r.entity)
		}
		out = append(out, resource{slug: r.slug, entity: e, perm: r.perm})
	}
	return out
}

// mount registers the CRUD routes for res plus any extra routes under the
// same prefix. Read-only entities get no PATCH or DELETE.
func (s *Server) mount(r chi.Router, res resource, extra ...func(chi.Router)) {
	r.Route("/"+res.slug, func(r chi.Router) {
		if res.perm != "" {
			r.Use(s.requirePermission(res.perm))
		} else {
			r.Use(s.fleetPermission)
		}
		r.Get("/", s.handleList(res))
		r.Post("/", s.handleCreate(res))
		r.Get("/{id}", s.handleGet(res))
		if !res.entity.ReadOnly {
			r.Patch("/{id}", s.handlePatch(res))
			r.Delete("/{id}", s.handleDelete(res))
		}
		for _, fn := range extra {
			fn(r)
		}
	})
}

func (s *Server) handleList(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(res.entity, r.URL.Query())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		rows, err := s.fleet.List(r.Context(), res.entity.Name, f)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		out := make([]map[string]any, len(rows))
		for i, row := range rows {
			out[i] = toJSON(res.entity, row)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleCreate(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := decodeBody(r.Body, res.entity)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		row, err := s.fleet.Create(r.Context(), res.entity.Name, values)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toJSON(res.entity, row))
	}
}

func (s *Server) handleGet(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := s.fleet.Get(r.Context(), res.entity.Name, chi.URLParam(r, "id"))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toJSON(res.entity, row))
	}
}

func (s *Server) handlePatch(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patch, err := decodeBody(r.Body, res.entity)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		row, err := s.fleet.Patch(r.Context(), res.entity.Name, chi.URLParam(r, "id"), patch)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toJSON(res.entity, row))
	}
}

func (s *Server) handleDelete(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.fleet.Remove(r.Context(), res.entity.Name, chi.URLParam(r, "id")); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeBody reads a JSON object and re-keys it from wire names to column
// names. Keys that match no field are passed through under their own name
// so that validation reports them.
func decodeBody(body io.Reader, e *schema.Entity) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, fmt.Errorf("invalid JSON body")
	}
	if raw == nil {
		return nil, fmt.Errorf("request body must be a JSON object")
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if f, ok := e.FieldByJSON(k); ok {
			out[f.Name] = v
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Reserved query parameters.
const (
	queryLimit  = "limit"
	queryOffset = "offset"
)

// maxPageSize caps limit on list endpoints.
const maxPageSize = 1000

// parseFilter turns query parameters into equality filters. Parameters are
// matched by wire name or column name; "null" matches SQL NULL.
func parseFilter(e *schema.Entity, q url.Values) (store.Filter, error) {
	f := store.Filter{Where: make(map[string]any)}
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		raw := vals[len(vals)-1]

		switch key {
		case queryLimit, queryOffset:
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return store.Filter{}, fmt.Errorf("%w: %s must be a non-negative integer", store.ErrInvalidFilter, key)
			}
			if key == queryLimit {
				f.Limit = min(n, maxPageSize)
			} else {
				f.Offset = n
			}
			continue
		case "token", "ticket":
			continue
		}

		field, ok := e.FieldByJSON(key)
		if !ok {
			field, ok = e.Field(key)
		}
		if !ok {
			return store.Filter{}, fmt.Errorf("%w: unknown field %q", store.ErrInvalidFilter, key)
		}
		v, err := filterValue(field, raw)
		if err != nil {
			return store.Filter{}, err
		}
		f.Where[field.Name] = v
	}
	return f, nil
}

func filterValue(f schema.Field, raw string) (any, error) {
	if raw == "null" && !f.Required {
		return nil, nil
	}
	switch f.Type {
	case schema.Boolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects true or false", store.ErrInvalidFilter, f.JSONName())
		}
		return b, nil
	case schema.Integer:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an integer", store.ErrInvalidFilter, f.JSONName())
		}
		return n, nil
	case schema.JSON:
		return nil, fmt.Errorf("%w: cannot filter on %s", store.ErrInvalidFilter, f.JSONName())
	}
	return raw, nil
}

// toJSON re-keys a stored row from column names to wire names.
func toJSON(e *schema.Entity, row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for _, f := range e.Fields {
		if v, ok := row[f.Name]; ok {
			out[f.JSONName()] = v
		}
	}
	return out
}
