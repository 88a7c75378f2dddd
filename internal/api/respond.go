package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/clinicbase/appointment-scheduling/pkg/apperror"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeAppError maps the error taxonomy onto HTTP statuses. Unknown
// errors stay opaque 500s.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	details := apperror.MessageOf(err)

	switch kind {
	case apperror.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", details)
	case apperror.KindValidation:
		writeError(w, http.StatusBadRequest, "validation_failed", details)
	case apperror.KindSlotConflict:
		writeError(w, http.StatusConflict, "slot_conflict", details)
	case apperror.KindPatientConflict:
		writeError(w, http.StatusConflict, "patient_conflict", details)
	case apperror.KindInvalidState:
		writeError(w, http.StatusConflict, "invalid_state", details)
	case apperror.KindAlreadyCancelled:
		writeError(w, http.StatusConflict, "already_cancelled", details)
	case apperror.KindCapacityExceeded:
		writeError(w, http.StatusUnprocessableEntity, "capacity_exceeded", details)
	case apperror.KindTransientConflict:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "transient_conflict", details)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
