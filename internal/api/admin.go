package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nammaooru/civicreport/internal/lifecycle"
	"github.com/nammaooru/civicreport/internal/models"
)

// AdminStatsHandler handles GET /api/admin/stats.
func (s *Server) AdminStatsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_stats"
	const method = "GET"

	counts, err := s.PG.StatusCounts(r.Context())
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, counts)
}

// AdminListReportsHandler handles GET /api/admin/reports in review order:
// reopened reports by priority first, then fresh open reports, then the rest.
func (s *Server) AdminListReportsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_list_reports"
	const method = "GET"

	q := r.URL.Query()
	reports, err := s.PG.ListReports(r.Context(), q.Get("status"), q.Get("category"))
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, reports)
}

// AdminGetReportHandler handles GET /api/admin/reports/{id}, returning the
// report joined with its reporter.
func (s *Server) AdminGetReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_get_report"
	const method = "GET"

	id, ok := s.pathID(w, r)
	if !ok {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		return
	}

	detail, err := s.PG.GetReportDetail(r.Context(), id)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, detail)
}

// adminStatusRequest is the payload for PATCH /api/admin/reports/{id}/status.
type adminStatusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateStatusHandler applies an admin-driven status change. Setting
// resolved parks the report in awaiting_user_confirmation until the reporter
// accepts or rejects.
func (s *Server) AdminUpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_update_status"
	const method = "PATCH"

	id, ok := s.pathID(w, r)
	if !ok {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		return
	}

	var req adminStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "invalid json")
		return
	}

	report, err := s.Reports.Transition(r.Context(), id, lifecycle.Request{
		Role:   lifecycle.RoleAdmin,
		Target: models.Status(req.Status),
	})
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, report)
}

// AdminMapDataHandler handles GET /api/admin/reports/map.
func (s *Server) AdminMapDataHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_map_data"
	const method = "GET"

	points, err := s.PG.ListMapPoints(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, points)
}

// AdminDeleteReportHandler handles DELETE /api/admin/reports/{id}. Only
// closed reports may be removed.
func (s *Server) AdminDeleteReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_delete_report"
	const method = "DELETE"

	id, ok := s.pathID(w, r)
	if !ok {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		return
	}

	if err := s.Reports.Delete(r.Context(), id); err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusNoContent, start)
	w.WriteHeader(http.StatusNoContent)
}
