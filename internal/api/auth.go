package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nammaooru/civicreport/internal/auth"
	"github.com/nammaooru/civicreport/internal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// RegisterHandler handles POST /api/auth/register. New accounts are always
// citizens; admins are provisioned out of band.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "register"
	const method = "POST"

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "invalid json")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "name, email and a password of at least 8 characters are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         models.RoleCitizen,
		Phone:        req.Phone,
	}
	if err := s.PG.InsertUser(r.Context(), user); err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	token, err := s.Tokens.Generate(user)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusCreated, start)
	s.writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// LoginHandler handles POST /api/auth/login.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "login"
	const method = "POST"

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(endpoint, method, http.StatusBadRequest, start)
		s.writeError(w, http.StatusBadRequest, "Validation failed", "invalid json")
		return
	}

	user, err := s.PG.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown email and wrong password.
		s.finish(endpoint, method, http.StatusUnauthorized, start)
		s.writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	token, err := s.Tokens.Generate(user)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// MeHandler handles GET /api/auth/me.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "me"
	const method = "GET"

	_, userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	user, err := s.PG.GetUserByID(r.Context(), userID)
	if err != nil {
		s.finish(endpoint, method, s.writeServiceError(w, r, err), start)
		return
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, user)
}
