package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/posfleet-core/internal/auth"
	"github.com/nerrad567/posfleet-core/internal/fleet"
	"github.com/nerrad567/posfleet-core/internal/schema"
	"github.com/nerrad567/posfleet-core/internal/store"
)

// Error represents a structured error response.
type Error struct {
	Status  int                 `json:"status"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []schema.FieldError `json:"fields,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeForeignKey     = "foreign_key_violation"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeTimeout        = "timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps an error from the fleet service or the store onto
// a response. Unclassified errors are logged and reported as 500 without
// their text.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: "validation failed",
			Fields:  verr.Fields,
		})
	case errors.Is(err, schema.ErrValidation),
		errors.Is(err, schema.ErrType),
		errors.Is(err, store.ErrInvalidFilter),
		errors.Is(err, fleet.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownEntity):
		writeNotFound(w, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, "a record with the same unique value already exists")
	case errors.Is(err, store.ErrForeignKey):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeForeignKey, "referenced record does not exist or is still referenced")
	case errors.Is(err, store.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "records of this kind cannot be changed")
	case errors.Is(err, store.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "storage did not respond in time")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
