package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/auth"
	"github.com/nammaooru/civicreport/internal/config"
	"github.com/nammaooru/civicreport/internal/geocoding"
	"github.com/nammaooru/civicreport/internal/models"
	"github.com/nammaooru/civicreport/internal/observability"
	"github.com/nammaooru/civicreport/internal/service"
	"github.com/nammaooru/civicreport/internal/storage"
)

// stubStore backs the report service with an in-memory map for handler tests.
type stubStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*models.Report
}

func newStubStore() *stubStore {
	return &stubStore{reports: make(map[uuid.UUID]*models.Report)}
}

func (s *stubStore) seed(r *models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.reports[r.ID] = r
}

func (s *stubStore) InsertReport(ctx context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	clone := *r
	s.reports[r.ID] = &clone
	return nil
}

func (s *stubStore) MutateReport(ctx context.Context, id uuid.UUID, fn func(*models.Report) error) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *r
	if err := fn(&clone); err != nil {
		return nil, err
	}
	s.reports[id] = &clone
	out := clone
	return &out, nil
}

func (s *stubStore) DeleteReport(ctx context.Context, id uuid.UUID, fn func(*models.Report) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return models.ErrNotFound
	}
	if err := fn(r); err != nil {
		return err
	}
	delete(s.reports, id)
	return nil
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) geocoding.Address {
	return geocoding.Address{FormattedAddress: "MG Road, Bengaluru"}
}

type testHarness struct {
	server *Server
	store  *stubStore
	tokens *auth.Manager
}

func newTestHarness() *testHarness {
	store := newStubStore()
	logger := zap.NewNop()
	metrics := observability.NewNoOpRegistry()
	tokens := auth.NewManager("test-secret", time.Hour)
	reports := service.New(store, stubGeocoder{}, storage.NewMemoryStore(), nil, metrics, logger, 150)

	srv := NewServer(logger, nil, reports, stubGeocoder{}, tokens, metrics, config.Config{
		AllowedOrigins: []string{"*"},
	})
	return &testHarness{server: srv, store: store, tokens: tokens}
}

func (h *testHarness) token(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	tok, err := h.tokens.Generate(&models.User{ID: id, Email: "t@example.com", Role: role})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (h *testHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	h := newTestHarness()
	rec := h.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	h := newTestHarness()
	rec := h.do(t, http.MethodGet, "/api/reports/my-reports", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRoutes_RejectMalformedToken(t *testing.T) {
	h := newTestHarness()
	rec := h.do(t, http.MethodGet, "/api/reports/my-reports", "garbage", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestRoutes_AdminForbiddenForCitizens(t *testing.T) {
	h := newTestHarness()
	tok := h.token(t, uuid.New(), models.RoleCitizen)
	rec := h.do(t, http.MethodGet, "/api/admin/stats", tok, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for citizen on admin route, got %d", rec.Code)
	}
}

func TestCreateReportHandler_RequiresMultipart(t *testing.T) {
	h := newTestHarness()
	tok := h.token(t, uuid.New(), models.RoleCitizen)
	rec := h.do(t, http.MethodPost, "/api/reports", tok, `{"category":"pothole"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", rec.Code)
	}
}

func TestCreateReportHandler_Multipart(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	tok := h.token(t, userID, models.RoleCitizen)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("category", "pothole")
	_ = mw.WriteField("description", "deep pothole near the bus stop")
	_ = mw.WriteField("captured_latitude", "12.9716")
	_ = mw.WriteField("captured_longitude", "77.5946")
	_ = mw.WriteField("captured_accuracy", "8.5")
	part, err := mw.CreateFormFile("image", "pothole.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reports", &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != models.StatusOpen {
		t.Errorf("status = %s, want open", got.Status)
	}
	if got.UserID != userID {
		t.Errorf("userID = %s, want token subject", got.UserID)
	}
	if got.Address != "MG Road, Bengaluru" {
		t.Errorf("address = %q", got.Address)
	}
}

func TestCreateReportHandler_FarCorrectionRejected(t *testing.T) {
	h := newTestHarness()
	tok := h.token(t, uuid.New(), models.RoleCitizen)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("category", "streetlight")
	_ = mw.WriteField("description", "lamp out")
	_ = mw.WriteField("captured_latitude", "12.9716")
	_ = mw.WriteField("captured_longitude", "77.5946")
	_ = mw.WriteField("user_latitude", "12.9800")
	_ = mw.WriteField("user_longitude", "77.6100")
	part, _ := mw.CreateFormFile("image", "lamp.jpg")
	_, _ = part.Write([]byte("jpeg-bytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/reports", &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a far correction, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Location validation failed" {
		t.Errorf("error = %v", body["error"])
	}
	if _, ok := body["distance_m"]; !ok {
		t.Error("response should carry the computed distance")
	}
}

func TestAdminUpdateStatusHandler_ResolveParksAsAwaiting(t *testing.T) {
	h := newTestHarness()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusOpen, Priority: &low}
	h.store.seed(report)

	admin := h.token(t, uuid.New(), models.RoleAdmin)
	rec := h.do(t, http.MethodPatch, "/api/admin/reports/"+report.ID.String(), admin, `{"status":"resolved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != models.StatusAwaitingUserConfirm {
		t.Errorf("status = %s, want awaiting_user_confirmation", got.Status)
	}
}

func TestAdminUpdateStatusHandler_BlockedWhileAwaiting(t *testing.T) {
	h := newTestHarness()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusAwaitingUserConfirm, Priority: &low}
	h.store.seed(report)

	admin := h.token(t, uuid.New(), models.RoleAdmin)
	rec := h.do(t, http.MethodPatch, "/api/admin/reports/"+report.ID.String(), admin, `{"status":"closed"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 while awaiting confirmation, got %d", rec.Code)
	}
}

func TestAdminUpdateStatusHandler_UnknownStatus(t *testing.T) {
	h := newTestHarness()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusOpen, Priority: &low}
	h.store.seed(report)

	admin := h.token(t, uuid.New(), models.RoleAdmin)
	rec := h.do(t, http.MethodPatch, "/api/admin/reports/"+report.ID.String(), admin, `{"status":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unrecognized status, got %d", rec.Code)
	}
}

func TestAdminUpdateStatusHandler_UnknownReport(t *testing.T) {
	h := newTestHarness()
	admin := h.token(t, uuid.New(), models.RoleAdmin)
	rec := h.do(t, http.MethodPatch, "/api/admin/reports/"+uuid.NewString(), admin, `{"status":"in_progress"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminUpdateStatusHandler_InvalidID(t *testing.T) {
	h := newTestHarness()
	admin := h.token(t, uuid.New(), models.RoleAdmin)
	rec := h.do(t, http.MethodPatch, "/api/admin/reports/not-a-uuid", admin, `{"status":"in_progress"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestAcceptResolutionHandler_ClosesReport(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: userID, Status: models.StatusAwaitingUserConfirm, Priority: &low}
	h.store.seed(report)

	tok := h.token(t, userID, models.RoleCitizen)
	rec := h.do(t, http.MethodPut, "/api/reports/"+report.ID.String()+"/accept-resolution", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != models.StatusClosed {
		t.Errorf("status = %s, want closed", got.Status)
	}
	if got.Priority != nil {
		t.Error("closed report must have null priority")
	}
}

func TestAcceptResolutionHandler_NonOwnerSeesNotFound(t *testing.T) {
	h := newTestHarness()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusAwaitingUserConfirm, Priority: &low}
	h.store.seed(report)

	stranger := h.token(t, uuid.New(), models.RoleCitizen)
	rec := h.do(t, http.MethodPut, "/api/reports/"+report.ID.String()+"/accept-resolution", stranger, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owner, got %d", rec.Code)
	}
}

func TestAcceptResolutionHandler_NotAwaitingIsNotFound(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: userID, Status: models.StatusOpen, Priority: &low}
	h.store.seed(report)

	tok := h.token(t, userID, models.RoleCitizen)
	rec := h.do(t, http.MethodPut, "/api/reports/"+report.ID.String()+"/accept-resolution", tok, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a report not awaiting confirmation, got %d", rec.Code)
	}
}

func TestRejectResolutionHandler_RequiresReason(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: userID, Status: models.StatusAwaitingUserConfirm, Priority: &low}
	h.store.seed(report)

	tok := h.token(t, userID, models.RoleCitizen)
	rec := h.do(t, http.MethodPut, "/api/reports/"+report.ID.String()+"/reject-resolution", tok, `{"reason":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a reason, got %d", rec.Code)
	}
}

func TestRejectResolutionHandler_Escalates(t *testing.T) {
	h := newTestHarness()
	userID := uuid.New()
	low := models.PriorityLow
	report := &models.Report{ID: uuid.New(), UserID: userID, Status: models.StatusAwaitingUserConfirm, Priority: &low}
	h.store.seed(report)

	tok := h.token(t, userID, models.RoleCitizen)
	rec := h.do(t, http.MethodPut, "/api/reports/"+report.ID.String()+"/reject-resolution", tok, `{"reason":"still broken"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != models.StatusReopened {
		t.Errorf("status = %s, want reopened", got.Status)
	}
	if got.Priority == nil || *got.Priority != models.PriorityMedium {
		t.Errorf("priority = %v, want medium", got.Priority)
	}
	if got.ReopenCount != 1 {
		t.Errorf("reopenCount = %d, want 1", got.ReopenCount)
	}
}

func TestAdminDeleteReportHandler_OnlyClosed(t *testing.T) {
	h := newTestHarness()
	low := models.PriorityLow
	open := &models.Report{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusOpen, Priority: &low}
	closed := &models.Report{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusClosed}
	h.store.seed(open)
	h.store.seed(closed)

	admin := h.token(t, uuid.New(), models.RoleAdmin)

	if rec := h.do(t, http.MethodDelete, "/api/admin/reports/"+open.ID.String(), admin, ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 deleting an open report, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodDelete, "/api/admin/reports/"+closed.ID.String(), admin, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 deleting a closed report, got %d", rec.Code)
	}
}

func TestTestGeocodeHandler_RequiresCoordinates(t *testing.T) {
	h := newTestHarness()
	tok := h.token(t, uuid.New(), models.RoleCitizen)
	rec := h.do(t, http.MethodGet, "/api/reports/test-geocode?lat=12.9716", tok, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without lng, got %d", rec.Code)
	}
}

func TestTestGeocodeHandler_ReturnsAddress(t *testing.T) {
	h := newTestHarness()
	tok := h.token(t, uuid.New(), models.RoleCitizen)
	rec := h.do(t, http.MethodGet, "/api/reports/test-geocode?lat=12.9716&lng=77.5946", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var addr geocoding.Address
	if err := json.Unmarshal(rec.Body.Bytes(), &addr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if addr.FormattedAddress != "MG Road, Bengaluru" {
		t.Errorf("address = %q", addr.FormattedAddress)
	}
}
