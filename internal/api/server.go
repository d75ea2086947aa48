// Package api exposes the HTTP surface: report submission and lifecycle for
// citizens, review and map endpoints for admins, and auth.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/auth"
	"github.com/nammaooru/civicreport/internal/config"
	"github.com/nammaooru/civicreport/internal/db"
	"github.com/nammaooru/civicreport/internal/middleware"
	"github.com/nammaooru/civicreport/internal/observability"
	"github.com/nammaooru/civicreport/internal/service"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger   *zap.Logger
	PG       *db.Postgres
	Reports  *service.Service
	Geocoder service.Geocoder
	Tokens   *auth.Manager
	Metrics  observability.MetricsRegistry
	Config   config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, pg *db.Postgres, reports *service.Service, geocoder service.Geocoder,
	tokens *auth.Manager, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:   logger,
		PG:       pg,
		Reports:  reports,
		Geocoder: geocoder,
		Tokens:   tokens,
		Metrics:  metrics,
		Config:   cfg,
	}
}

// Routes builds the full router including middleware.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authAPI := r.PathPrefix("/api/auth").Subrouter()
	authAPI.HandleFunc("/register", s.RegisterHandler).Methods(http.MethodPost)
	authAPI.HandleFunc("/login", s.LoginHandler).Methods(http.MethodPost)

	user := r.PathPrefix("/api").Subrouter()
	user.Use(middleware.Authenticate(s.Tokens))
	user.HandleFunc("/auth/me", s.MeHandler).Methods(http.MethodGet)
	user.HandleFunc("/reports", s.CreateReportHandler).Methods(http.MethodPost)
	user.HandleFunc("/reports/my-reports", s.MyReportsHandler).Methods(http.MethodGet)
	user.HandleFunc("/reports/stats", s.UserStatsHandler).Methods(http.MethodGet)
	user.HandleFunc("/reports/test-geocode", s.TestGeocodeHandler).Methods(http.MethodGet)
	user.HandleFunc("/reports/{id}", s.GetReportHandler).Methods(http.MethodGet)
	user.HandleFunc("/reports/{id}/accept-resolution", s.AcceptResolutionHandler).Methods(http.MethodPut)
	user.HandleFunc("/reports/{id}/reject-resolution", s.RejectResolutionHandler).Methods(http.MethodPut)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.Authenticate(s.Tokens), middleware.RequireAdmin)
	admin.HandleFunc("/stats", s.AdminStatsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/reports", s.AdminListReportsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/reports/map", s.AdminMapDataHandler).Methods(http.MethodGet)
	admin.HandleFunc("/reports/{id}", s.AdminGetReportHandler).Methods(http.MethodGet)
	admin.HandleFunc("/reports/{id}", s.AdminUpdateStatusHandler).Methods(http.MethodPatch)
	admin.HandleFunc("/reports/{id}", s.AdminDeleteReportHandler).Methods(http.MethodDelete)

	var h http.Handler = r
	h = middleware.CORS(s.Config.AllowedOrigins)(h)
	h = middleware.WithTraceLogger(s.Logger)(h)
	return h
}
