package http

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"truckpay/internal/auth"
	"truckpay/internal/core"
	"truckpay/internal/log"
	"truckpay/internal/storage"
)

type signupRequest struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	FullName            string `json:"full_name"`
	Phone               string `json:"phone"`
	DriverType          string `json:"driver_type"`
	CompanyDeductionPct string `json:"company_deduction_pct"`
	WeeklyPeriod        string `json:"weekly_period"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid email address")
		return
	}

	pct, err := core.ParsePercent(req.CompanyDeductionPct)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	driverType := core.DriverType(req.DriverType)
	if driverType == "" {
		driverType = core.Solo
	}
	profile := core.Profile{
		FullName:            strings.TrimSpace(req.FullName),
		Phone:               strings.TrimSpace(req.Phone),
		Email:               email,
		DriverType:          driverType,
		CompanyDeductionPct: pct,
		WeeklyPeriod:        req.WeeklyPeriod,
	}
	if err := profile.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if _, err := s.store.GetUserByEmail(r.Context(), email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, err)
		return
	}

	userID := uuid.NewString()
	if err := s.store.CreateUser(r.Context(), storage.User{
		ID:           userID,
		Email:        email,
		PasswordHash: hash,
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	profile.UserID = userID
	if err := s.store.UpsertProfile(r.Context(), profile); err != nil {
		s.fail(w, r, err)
		return
	}

	token, exp, err := s.auth.IssueToken(userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "account created",
		log.FieldUserID, userID)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: exp, UserID: userID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.store.GetUserByEmail(r.Context(), email)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := s.auth.IssueToken(user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp, UserID: user.ID})
}
