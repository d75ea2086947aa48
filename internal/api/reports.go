package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/lifecycle"
	"github.com/nammaooru/civicreport/internal/middleware"
	"github.com/nammaooru/civicreport/internal/models"
	"github.com/nammaooru/civicreport/internal/service"
)

// maxUploadBytes caps multipart report submissions, image included.
const maxUploadBytes = 10 << 20

// CreateReportHandler handles POST /api/reports multipart submissions.
func (s *Server) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "create_report"
	const method = "POST"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "expected multipart form data")
		return
	}

	category := r.FormValue("category")
	description := r.FormValue("description")
	if category == "" || description == "" {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "category and description are required")
		return
	}

	capturedLat, errLat := strconv.ParseFloat(r.FormValue("captured_latitude"), 64)
	capturedLng, errLng := strconv.ParseFloat(r.FormValue("captured_longitude"), 64)
	if errLat != nil || errLng != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "captured_latitude and captured_longitude are required")
		return
	}
	accuracy, _ := strconv.ParseFloat(r.FormValue("captured_accuracy"), 64)

	sub := service.Submission{
		UserID:            userID,
		Category:          category,
		Description:       description,
		Address:           r.FormValue("address"),
		CapturedLatitude:  capturedLat,
		CapturedLongitude: capturedLng,
		CapturedAccuracy:  accuracy,
	}

	// A corrected location is all-or-nothing.
	if v := r.FormValue("user_latitude"); v != "" {
		lat, errULat := strconv.ParseFloat(v, 64)
		lng, errULng := strconv.ParseFloat(r.FormValue("user_longitude"), 64)
		if errULat != nil || errULng != nil {
			s.finish(endpoint, method, http.StatusBadRequest, start)
			s.writeError(w, http.StatusBadRequest, "Validation failed", "user_latitude and user_longitude must both be valid numbers")
			return
		}
		sub.UserLatitude = &lat
		sub.UserLongitude = &lng
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer func() {
			if closeErr := file.Close(); closeErr != nil {
				s.Logger.Warn("failed to close upload", zap.Error(closeErr))
			}
		}()
		sub.Image = file
		sub.ImageFilename = header.Filename
		sub.ImageType = header.Header.Get("Content-Type")
		sub.ImageSize = header.Size
	}

	report, err := s.Reports.Submit(r.Context(), sub)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, report)
}

// MyReportsHandler handles GET /api/reports/my.
func (s *Server) MyReportsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "my_reports"
	const method = "GET"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	reports, err := s.PG.ListUserReports(r.Context(), userID)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, reports)
}

// GetReportHandler handles GET /api/reports/{id}. Reports are only visible to
// their owner; anyone else sees the same 404 as a missing report.
func (s *Server) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "get_report"
	const method = "GET"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		return
	}

	report, err := s.PG.GetUserReport(r.Context(), id, userID)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, report)
}

// UserStatsHandler handles GET /api/reports/stats.
func (s *Server) UserStatsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "user_stats"
	const method = "GET"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	stats, err := s.PG.UserStats(r.Context(), userID)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, stats)
}

// AcceptResolutionHandler handles PUT /api/reports/{id}/accept-resolution:
// the owning user confirms the fix and the report closes.
func (s *Server) AcceptResolutionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "accept_resolution"
	const method = "PUT"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		return
	}

	report, err := s.Reports.Transition(r.Context(), id, lifecycle.Request{
		Role:   lifecycle.RoleUser,
		UserID: userID,
		Action: lifecycle.ActionAccept,
	})
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, report)
}

// rejectRequest is the payload for PUT /api/reports/{id}/reject-resolution.
type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectResolutionHandler handles PUT /api/reports/{id}/reject-resolution:
// the owning user disputes the fix, reopening and escalating the report.
func (s *Server) RejectResolutionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "reject_resolution"
	const method = "PUT"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "invalid json")
		return
	}

	report, err := s.Reports.Transition(r.Context(), id, lifecycle.Request{
		Role:   lifecycle.RoleUser,
		UserID: userID,
		Action: lifecycle.ActionReject,
		Reason: req.Reason,
	})
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, report)
}

// TestGeocodeHandler handles GET /api/reports/test-geocode?lat=..&lng=..,
// exposing the geocoder directly for diagnostics.
func (s *Server) TestGeocodeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "test_geocode"
	const method = "GET"

	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "lat and lng are required")
		return
	}

	addr := s.Geocoder.ReverseGeocode(r.Context(), lat, lng)

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, addr)
}

// requireUser extracts the authenticated user's claims and ID. The auth
// middleware guarantees claims exist; the subject parse guards stale tokens.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Unauthorized", "missing credentials")
		return nil, uuid.Nil, false
	}
	userID, err := claims.Subject()
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid token subject")
		return nil, uuid.Nil, false
	}
	return &models.User{ID: userID, Email: claims.Email, Role: claims.Role}, userID, true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Validation failed", "invalid report id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) finish(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
