package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/db"
	"github.com/nammaooru/civicreport/internal/geo"
	"github.com/nammaooru/civicreport/internal/lifecycle"
	"github.com/nammaooru/civicreport/internal/middleware"
	"github.com/nammaooru/civicreport/internal/models"
	"github.com/nammaooru/civicreport/internal/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, details string) {
	s.writeJSON(w, status, errorBody{Error: kind, Details: details})
}

// writeServiceError maps domain errors onto HTTP statuses. Unknown errors
// become opaque 500s so internals never leak to clients.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) int {
	var tooFar *geo.TooFarError
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Not found", "resource not found")
		return http.StatusNotFound
	case errors.As(err, &tooFar):
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "Location validation failed",
			"details":    tooFar.Error(),
			"distance_m": tooFar.DistanceM,
			"max_m":      tooFar.MaxM,
		})
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMissingImage):
		s.writeError(w, http.StatusBadRequest, "Validation failed", "an image is required")
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		// The ball is in the user's court; the admin may not move it.
		s.writeError(w, http.StatusForbidden, "Invalid transition", err.Error())
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidState):
		// A report that is not awaiting confirmation is not eligible, and the
		// caller learns nothing more than that.
		s.writeError(w, http.StatusNotFound, "Not found", "report is not awaiting confirmation")
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrUnknownStatus):
		s.writeError(w, http.StatusBadRequest, "Invalid status", err.Error())
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrReasonRequired):
		s.writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return http.StatusBadRequest
	case errors.Is(err, service.ErrReportNotClosed):
		s.writeError(w, http.StatusConflict, "Conflict", "only closed reports can be deleted")
		return http.StatusConflict
	case errors.Is(err, db.ErrDuplicateEmail):
		s.writeError(w, http.StatusConflict, "Conflict", "email already registered")
		return http.StatusConflict
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Internal server error", "")
		return http.StatusInternalServerError
	}
}
